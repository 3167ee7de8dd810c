package costumes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/infra/imagestore"

	"github.com/gin-gonic/gin"
)

// parseStringList accepts a JSON array, a single JSON string or a comma separated list.
func parseStringList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		switch v := decoded.(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
					out = append(out, s)
				}
			}
			return out
		case string:
			return parseStringList(v)
		}
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseIDList accepts the same shapes as parseStringList; every entry must be an integer.
func parseIDList(raw string) ([]int64, error) {
	parts := parseStringList(raw)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, apperr.Validation("related_costumes must be a list of integer ids")
		}
		out = append(out, id)
	}
	return out, nil
}

func parseInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperr.Validation(field + " must be an integer")
	}
	return n, nil
}

func parseFloat(field, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperr.Validation(field + " must be a number")
	}
	return f, nil
}

func optionalString(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return &raw
}

func createInputFromForm(c *gin.Context) (costumes.CreateInput, error) {
	in := costumes.CreateInput{
		Name:        c.PostForm("name"),
		Description: optionalString(c.PostForm("description")),
		Amount:      1,
		Gender:      costumes.Gender(c.PostForm("gender")),
		AgeCategory: costumes.AgeCategory(c.PostForm("age_category")),
		Size:        optionalString(c.PostForm("size")),
		Tags:        parseStringList(c.PostForm("tags")),
		Items:       optionalString(c.PostForm("items")),
	}
	if raw := c.PostForm("amount"); strings.TrimSpace(raw) != "" {
		n, err := parseInt("amount", raw)
		if err != nil {
			return in, err
		}
		in.Amount = n
	}
	if raw := c.PostForm("price"); strings.TrimSpace(raw) != "" {
		f, err := parseFloat("price", raw)
		if err != nil {
			return in, err
		}
		in.Price = &f
	}
	ids, err := parseIDList(c.PostForm("related_costumes"))
	if err != nil {
		return in, err
	}
	in.RelatedCostumeIDs = ids
	return in, nil
}

// updateInputFromForm only sets the fields present in the form.
func updateInputFromForm(c *gin.Context) (costumes.UpdateInput, []string, error) {
	var in costumes.UpdateInput
	if v, ok := c.GetPostForm("name"); ok {
		in.Name = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		in.Description = &v
	}
	if _, ok := c.GetPostForm("amount"); ok {
		return in, nil, apperr.Validation("amount cannot be set on update; use the amount endpoint with a delta")
	}
	if v, ok := c.GetPostForm("price"); ok {
		if strings.TrimSpace(v) == "" {
			in.ClearPrice = true
		} else {
			f, err := parseFloat("price", v)
			if err != nil {
				return in, nil, err
			}
			in.Price = &f
		}
	}
	if v, ok := c.GetPostForm("gender"); ok && v != "" {
		g := costumes.Gender(v)
		in.Gender = &g
	}
	if v, ok := c.GetPostForm("age_category"); ok && v != "" {
		a := costumes.AgeCategory(v)
		in.AgeCategory = &a
	}
	if v, ok := c.GetPostForm("size"); ok {
		in.Size = &v
	}
	if v, ok := c.GetPostForm("tags"); ok {
		tags := parseStringList(v)
		in.Tags = &tags
	}
	if v, ok := c.GetPostForm("items"); ok {
		in.Items = &v
	}
	if v, ok := c.GetPostForm("related_costumes"); ok {
		ids, err := parseIDList(v)
		if err != nil {
			return in, nil, err
		}
		in.RelatedCostumeIDs = &ids
	}
	if v, ok := c.GetPostForm("is_active"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return in, nil, apperr.Validation("is_active must be true or false")
		}
		in.IsActive = &b
	}
	return in, parseStringList(c.PostForm("remove_images")), nil
}

// readUploads loads every "images" part, refusing oversized parts before reading them.
func readUploads(c *gin.Context, maxBytes int64) ([]imagestore.Upload, error) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation("Invalid multipart form")
	}

	files := form.File["images"]
	uploads := make([]imagestore.Upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxBytes {
			return nil, apperr.ErrPayloadTooLarge.With("%s exceeds %d bytes", fh.Filename, maxBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, imagestore.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func filterFromQuery(c *gin.Context) (costumes.Filter, error) {
	f := costumes.Filter{
		Name:        strings.TrimSpace(c.Query("name")),
		Gender:      costumes.Gender(c.Query("gender")),
		AgeCategory: costumes.AgeCategory(c.Query("age_category")),
		Size:        strings.TrimSpace(c.Query("size")),
	}
	if f.Gender != "" && !f.Gender.Valid() {
		return f, apperr.Validation("gender must be one of male female unisex")
	}
	if f.AgeCategory != "" && !f.AgeCategory.Valid() {
		return f, apperr.Validation("age_category must be one of child teen adult universal")
	}
	for _, raw := range c.QueryArray("tags") {
		f.Tags = append(f.Tags, parseStringList(raw)...)
	}
	if raw := c.Query("min_price"); raw != "" {
		v, err := parseFloat("min_price", raw)
		if err != nil || v < 0 {
			return f, apperr.Validation("min_price must be a non-negative number")
		}
		f.MinPrice = &v
	}
	if raw := c.Query("max_price"); raw != "" {
		v, err := parseFloat("max_price", raw)
		if err != nil || v < 0 {
			return f, apperr.Validation("max_price must be a non-negative number")
		}
		f.MaxPrice = &v
	}
	if raw := c.Query("min_amount"); raw != "" {
		v, err := parseInt("min_amount", raw)
		if err != nil || v < 0 {
			return f, apperr.Validation("min_amount must be a non-negative integer")
		}
		f.MinAmount = &v
	}
	return f, nil
}
