package costumes

import (
	"time"

	"costume-rental/internal/domain/media"
)

// URLResolver turns a descriptor into its public URL map without touching storage.
type URLResolver interface {
	URLsForDescriptor(d media.ImageDescriptor) media.URLSet
}

// PublicView is the catalog detail page: no stock, related ids or storage paths.
type PublicView struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Price       *float64       `json:"price"`
	Gender      Gender         `json:"gender"`
	AgeCategory AgeCategory    `json:"age_category"`
	Size        *string        `json:"size"`
	Tags        []string       `json:"tags"`
	Items       *string        `json:"items"`
	Images      []media.URLSet `json:"images"`
	CreatedAt   time.Time      `json:"created_at"`
	IsActive    bool           `json:"is_active"`
}

// ListItem is one row of the public catalog listing.
type ListItem struct {
	ID          uint        `json:"id"`
	Name        string      `json:"name"`
	Price       *float64    `json:"price"`
	Gender      Gender      `json:"gender"`
	AgeCategory AgeCategory `json:"age_category"`
	Tags        []string    `json:"tags"`
	Thumbnail   *string     `json:"thumbnail"`
	IsActive    bool        `json:"is_active"`
}

// AdminView is the full record plus the URL map of each image, in the same order as Images.
type AdminView struct {
	*Costume
	ImageURLs []media.URLSet `json:"image_urls"`
}

func FormatAdmin(c *Costume, urls URLResolver) AdminView {
	return AdminView{Costume: c, ImageURLs: imageURLs(c, urls)}
}

func FormatAdminList(cs []Costume, urls URLResolver) []AdminView {
	out := make([]AdminView, 0, len(cs))
	for i := range cs {
		out = append(out, FormatAdmin(&cs[i], urls))
	}
	return out
}

func imageURLs(c *Costume, urls URLResolver) []media.URLSet {
	out := make([]media.URLSet, 0, len(c.Images))
	for _, img := range c.Images {
		out = append(out, urls.URLsForDescriptor(img))
	}
	return out
}

func FormatPublic(c *Costume, urls URLResolver) PublicView {
	return PublicView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Price:       c.Price,
		Gender:      c.Gender,
		AgeCategory: c.AgeCategory,
		Size:        c.Size,
		Tags:        nonNil([]string(c.Tags)),
		Items:       c.Items,
		Images:      imageURLs(c, urls),
		CreatedAt:   c.CreatedAt,
		IsActive:    c.IsActive,
	}
}

// FormatListItem uses the first image's thumbnail, or null when there are no images.
func FormatListItem(c *Costume, urls URLResolver) ListItem {
	item := ListItem{
		ID:          c.ID,
		Name:        c.Name,
		Price:       c.Price,
		Gender:      c.Gender,
		AgeCategory: c.AgeCategory,
		Tags:        nonNil([]string(c.Tags)),
		IsActive:    c.IsActive,
	}
	if len(c.Images) > 0 {
		if thumb := urls.URLsForDescriptor(c.Images[0]).Thumbnail(); thumb != "" {
			item.Thumbnail = &thumb
		}
	}
	return item
}

func FormatList(cs []Costume, urls URLResolver) []ListItem {
	out := make([]ListItem, 0, len(cs))
	for i := range cs {
		out = append(out, FormatListItem(&cs[i], urls))
	}
	return out
}
