package costumes

import (
	"context"
	"errors"
	"strings"
	"time"

	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/media"
	"costume-rental/internal/infra/imagestore"
	"costume-rental/internal/infra/validation"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImageStore is what the costume lifecycle needs from the content-addressed store.
type ImageStore interface {
	Validate(contentType string, size int64) error
	Ingest(ctx context.Context, up imagestore.Upload) (media.ImageDescriptor, error)
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	URLsForDescriptor(d media.ImageDescriptor) media.URLSet
}

type CreateInput struct {
	Name              string      `json:"name" validate:"required,min=1,max=200"`
	Description       *string     `json:"description" validate:"omitempty,max=2000"`
	Amount            int         `json:"amount" validate:"gte=0"`
	Price             *float64    `json:"price" validate:"omitempty,gte=0"`
	Gender            Gender      `json:"gender" validate:"oneof=male female unisex"`
	AgeCategory       AgeCategory `json:"age_category" validate:"oneof=child teen adult universal"`
	Size              *string     `json:"size" validate:"omitempty,max=50"`
	Tags              []string    `json:"tags" validate:"max=20,dive,max=100"`
	Items             *string     `json:"items" validate:"omitempty,max=500"`
	RelatedCostumeIDs []int64     `json:"related_costumes" validate:"max=10"`
}

// UpdateInput carries only the fields being changed. For the nullable text fields a
// blank string clears the value. Stock is not here; it moves only through AdjustAmount.
type UpdateInput struct {
	Name              *string      `json:"name" validate:"omitempty,min=1,max=200"`
	Description       *string      `json:"description" validate:"omitempty,max=2000"`
	Price             *float64     `json:"price" validate:"omitempty,gte=0"`
	ClearPrice        bool         `json:"-"`
	Gender            *Gender      `json:"gender" validate:"omitempty,oneof=male female unisex"`
	AgeCategory       *AgeCategory `json:"age_category" validate:"omitempty,oneof=child teen adult universal"`
	Size              *string      `json:"size" validate:"omitempty,max=50"`
	Tags              *[]string    `json:"tags" validate:"omitempty,max=20,dive,max=100"`
	Items             *string      `json:"items" validate:"omitempty,max=500"`
	RelatedCostumeIDs *[]int64     `json:"related_costumes" validate:"omitempty,max=10"`
	IsActive          *bool        `json:"is_active"`
}

type Service struct {
	db       *gorm.DB
	images   ImageStore
	validate *validation.Validator
	policy   *bluemonday.Policy
	log      *logrus.Logger
}

func NewService(db *gorm.DB, images ImageStore, validate *validation.Validator, log *logrus.Logger) *Service {
	return &Service{
		db:       db,
		images:   images,
		validate: validate,
		policy:   bluemonday.StrictPolicy(),
		log:      log,
	}
}

// Create validates every upload before touching storage, then ingests them in order.
// A failing ingest fails the whole create; siblings already written stay on disk.
func (s *Service) Create(ctx context.Context, in CreateInput, uploads []imagestore.Upload) (*Costume, error) {
	s.cleanCreate(&in)
	if in.Gender == "" {
		in.Gender = GenderUnisex
	}
	if in.AgeCategory == "" {
		in.AgeCategory = AgeUniversal
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.validateUploads(uploads); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := s.ensureNameFree(db, in.Name, 0); err != nil {
		return nil, err
	}

	descriptors, err := s.ingestAll(ctx, uploads)
	if err != nil {
		return nil, err
	}

	costume := Costume{
		Name:              in.Name,
		Description:       in.Description,
		Amount:            in.Amount,
		Price:             in.Price,
		Gender:            in.Gender,
		AgeCategory:       in.AgeCategory,
		Size:              in.Size,
		Tags:              StringList(nonNil(in.Tags)),
		Items:             in.Items,
		Images:            descriptors,
		RelatedCostumeIDs: IDList(nonNil(in.RelatedCostumeIDs)),
		IsActive:          true,
	}
	if err := db.Create(&costume).Error; err != nil {
		s.logOrphans(descriptors, "create rolled back")
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{"costume_id": costume.ID, "images": len(descriptors)}).Info("[Costumes] costume created")
	return &costume, nil
}

// Update applies field changes, then removes images by hash, then ingests and appends new ones.
// Unknown hashes in remove are ignored.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput, uploads []imagestore.Upload, remove []string) (*Costume, error) {
	s.cleanUpdate(&in)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.validateUploads(uploads); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name != current.Name {
		if err := s.ensureNameFree(db, *in.Name, id); err != nil {
			return nil, err
		}
	}

	removeSet := make(map[string]bool, len(remove))
	for _, h := range remove {
		removeSet[h] = true
	}
	for _, img := range current.Images {
		if removeSet[img.ContentHash] {
			s.deleteImage(ctx, id, img.ContentHash)
		}
	}

	added, err := s.ingestAll(ctx, uploads)
	if err != nil {
		return nil, err
	}

	var updated Costume
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, id).Error; err != nil {
			return translate(err)
		}
		in.apply(&updated)

		kept := make(media.ImageList, 0, len(updated.Images)+len(added))
		for _, img := range updated.Images {
			if !removeSet[img.ContentHash] {
				kept = append(kept, img)
			}
		}
		updated.Images = append(kept, added...)

		return translate(tx.Save(&updated).Error)
	})
	if err != nil {
		s.logOrphans(added, "update rolled back")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"costume_id": id, "added": len(added), "removed": len(remove)}).Info("[Costumes] costume updated")
	return &updated, nil
}

// Delete removes every owned image directory, then the record. Image cleanup is best effort.
func (s *Service) Delete(ctx context.Context, id uint) error {
	costume, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, img := range costume.Images {
		s.deleteImage(ctx, id, img.ContentHash)
	}
	if err := s.db.WithContext(ctx).Delete(&Costume{}, id).Error; err != nil {
		return err
	}
	s.log.WithField("costume_id", id).Info("[Costumes] costume deleted")
	return nil
}

// AdjustAmount adds delta to the stock in one conditional UPDATE, so concurrent
// adjustments can never take the amount below zero.
func (s *Service) AdjustAmount(ctx context.Context, id uint, delta int) (*Costume, error) {
	var costume Costume
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Costume{}).
			Where("id = ? AND amount + ? >= 0", id, delta).
			Updates(map[string]any{
				"amount":     gorm.Expr("amount + ?", delta),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&costume, id).Error; err != nil {
			return translate(err)
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNegativeInventory.With("Cannot reduce amount below zero (current %d, delta %d)", costume.Amount, delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &costume, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*Costume, error) {
	var costume Costume
	if err := s.db.WithContext(ctx).First(&costume, id).Error; err != nil {
		return nil, translate(err)
	}
	return &costume, nil
}

// GetActive hides inactive costumes as if they did not exist.
func (s *Service) GetActive(ctx context.Context, id uint) (*Costume, error) {
	costume, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !costume.IsActive {
		return nil, apperr.ErrCostumeNotFound
	}
	return costume, nil
}

func (s *Service) List(ctx context.Context, f Filter, skip, limit int) ([]Costume, error) {
	var out []Costume
	err := s.db.WithContext(ctx).Scopes(f.Scope(), Newest(skip, limit)).Find(&out).Error
	return out, err
}

func (s *Service) Search(ctx context.Context, query string, activeOnly bool, skip, limit int) ([]Costume, error) {
	var out []Costume
	err := s.db.WithContext(ctx).Scopes(SearchScope(query, activeOnly), Newest(skip, limit)).Find(&out).Error
	return out, err
}

// Related lists the active costumes named in related_costumes. An unknown id yields nothing.
func (s *Service) Related(ctx context.Context, id uint) ([]Costume, error) {
	costume, err := s.Get(ctx, id)
	if errors.Is(err, apperr.ErrCostumeNotFound) {
		return []Costume{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []Costume{}
	if len(costume.RelatedCostumeIDs) == 0 {
		return out, nil
	}
	err = s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", []int64(costume.RelatedCostumeIDs), true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// URLsForDescriptor lets the service itself serve as the URLResolver for public views.
func (s *Service) URLsForDescriptor(d media.ImageDescriptor) media.URLSet {
	return s.images.URLsForDescriptor(d)
}

func (s *Service) validateUploads(uploads []imagestore.Upload) error {
	for _, up := range uploads {
		if err := s.images.Validate(up.ContentType, int64(len(up.Data))); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ingestAll(ctx context.Context, uploads []imagestore.Upload) (media.ImageList, error) {
	out := make(media.ImageList, 0, len(uploads))
	for _, up := range uploads {
		desc, err := s.images.Ingest(ctx, up)
		if err != nil {
			s.logOrphans(out, "ingest failed for "+up.Filename)
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func (s *Service) deleteImage(ctx context.Context, costumeID uint, hash string) {
	entry := s.log.WithFields(logrus.Fields{"costume_id": costumeID, "hash": hash})
	deleted, err := s.images.DeleteByHash(ctx, hash)
	switch {
	case err != nil:
		entry.WithError(err).Warn("[Costumes] image cleanup failed")
	case !deleted:
		entry.Warn("[Costumes] image directory already gone")
	}
}

// logOrphans records files left behind when a request fails after ingest. They are not removed.
func (s *Service) logOrphans(images media.ImageList, reason string) {
	if len(images) == 0 {
		return
	}
	s.log.WithFields(logrus.Fields{"hashes": images.Hashes(), "reason": reason}).Warn("[Costumes] orphaned image files left on storage")
}

func (s *Service) ensureNameFree(db *gorm.DB, name string, selfID uint) error {
	var count int64
	if err := db.Model(&Costume{}).Where("name = ? AND id <> ?", name, selfID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.ErrDuplicateName
	}
	return nil
}

func (s *Service) cleanCreate(in *CreateInput) {
	in.Name = s.clean(in.Name)
	in.Description = s.cleanOptional(in.Description)
	in.Size = s.cleanOptional(in.Size)
	in.Items = s.cleanOptional(in.Items)
	in.Tags = s.cleanTags(in.Tags)
}

func (s *Service) cleanUpdate(in *UpdateInput) {
	if in.Name != nil {
		name := s.clean(*in.Name)
		in.Name = &name
	}
	in.Description = s.cleanKeepBlank(in.Description)
	in.Size = s.cleanKeepBlank(in.Size)
	in.Items = s.cleanKeepBlank(in.Items)
	if in.Tags != nil {
		tags := s.cleanTags(*in.Tags)
		in.Tags = &tags
	}
}

func (s *Service) clean(v string) string {
	return strings.TrimSpace(s.policy.Sanitize(v))
}

// cleanOptional sanitizes v and turns blank strings into nil.
func (s *Service) cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	c := s.clean(*v)
	if c == "" {
		return nil
	}
	return &c
}

// cleanKeepBlank sanitizes v but keeps a blank result, which apply reads as "clear".
func (s *Service) cleanKeepBlank(v *string) *string {
	if v == nil {
		return nil
	}
	c := s.clean(*v)
	return &c
}

func (s *Service) cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if c := s.clean(t); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (in UpdateInput) apply(c *Costume) {
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Description != nil {
		c.Description = blankToNil(*in.Description)
	}
	if in.Price != nil {
		c.Price = in.Price
	}
	if in.ClearPrice {
		c.Price = nil
	}
	if in.Gender != nil {
		c.Gender = *in.Gender
	}
	if in.AgeCategory != nil {
		c.AgeCategory = *in.AgeCategory
	}
	if in.Size != nil {
		c.Size = blankToNil(*in.Size)
	}
	if in.Tags != nil {
		c.Tags = StringList(nonNil(*in.Tags))
	}
	if in.Items != nil {
		c.Items = blankToNil(*in.Items)
	}
	if in.RelatedCostumeIDs != nil {
		c.RelatedCostumeIDs = IDList(nonNil(*in.RelatedCostumeIDs))
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func blankToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.ErrCostumeNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.ErrDuplicateName.Wrap(err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return apperr.ErrNegativeInventory.Wrap(err)
	}
	return err
}

type Stats struct {
	TotalCostumes  int64 `json:"total_costumes"`
	ActiveCostumes int64 `json:"active_costumes"`
	TotalItems     int64 `json:"total_items"`
}

// Stats summarises the catalog: how many costumes, how many are listed, and the stock on hand.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.WithContext(ctx).Model(&Costume{}).
		Select("COUNT(*) AS total_costumes, " +
			"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_costumes, " +
			"COALESCE(SUM(amount), 0) AS total_items").
		Scan(&st).Error
	return st, err
}
