package costumes

import (
	"time"

	"costume-rental/internal/domain/media"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderUnisex Gender = "unisex"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnisex:
		return true
	}
	return false
}

type AgeCategory string

const (
	AgeChild     AgeCategory = "child"
	AgeTeen      AgeCategory = "teen"
	AgeAdult     AgeCategory = "adult"
	AgeUniversal AgeCategory = "universal"
)

func (a AgeCategory) Valid() bool {
	switch a {
	case AgeChild, AgeTeen, AgeAdult, AgeUniversal:
		return true
	}
	return false
}

// Costume owns its image descriptors; deleting it deletes their hash directories.
type Costume struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"size:200;not null;uniqueIndex:idx_costumes_name" json:"name"`
	Description       *string         `gorm:"size:2000" json:"description"`
	Amount            int             `gorm:"not null;check:chk_costumes_amount,amount >= 0" json:"amount"`
	Price             *float64        `json:"price"`
	Gender            Gender          `gorm:"size:10;not null;index" json:"gender"`
	AgeCategory       AgeCategory     `gorm:"size:10;not null;index" json:"age_category"`
	Size              *string         `gorm:"size:50;index" json:"size"`
	Tags              StringList      `gorm:"not null" json:"tags"`
	Items             *string         `gorm:"size:500" json:"items"`
	Images            media.ImageList `gorm:"not null" json:"images"`
	RelatedCostumeIDs IDList          `gorm:"column:related_costumes;not null" json:"related_costumes"`
	IsActive          bool            `gorm:"not null;index" json:"is_active"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
