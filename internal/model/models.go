package model

import (
	"time"
)

// Product is a seller listing tracked by the system.
//
// URL identifies the live listing and is what search results are
// matched against when resolving a rank. Title, Description and the
// comma-separated Keywords list feed the SEO scorer.
type Product struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID uint `gorm:"not null;index"`
	User   User `gorm:"foreignKey:UserID"`

	Title       string  `gorm:"not null"`
	Description string  `gorm:"type:text"`
	URL         string  `gorm:"type:varchar(512);not null"`
	Keywords    string  `gorm:"type:varchar(512)"` // comma-separated target keywords
	Price       float64 `gorm:"default:0"`

	TrackedKeywords []Keyword `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Sales           []Sale    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// Keyword is a search phrase tracked for a product.
//
// CurrentRank is nil until a refresh has run, and stays nil when the
// product was not found in the results. LastCheckedAt drives the
// scheduler: keywords whose last check is older than the configured
// interval are due.
type Keyword struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID    uint    `gorm:"not null;index"`
	ProductID uint    `gorm:"not null;index"`
	Product   Product `gorm:"foreignKey:ProductID"`

	Phrase        string `gorm:"type:varchar(255);not null"`
	Country       string `gorm:"type:varchar(8);default:us"`
	Device        string `gorm:"type:varchar(16);default:desktop"`
	CurrentRank   *int
	PreviousRank  *int
	LastCheckedAt *time.Time

	Observations []RankObservation `gorm:"foreignKey:KeywordID;constraint:OnDelete:CASCADE"`
}

// RankObservation is one historical rank measurement for a keyword.
//
// Position is nil when the product did not appear in the results. Mode
// records whether the observation came from the live search API or was
// synthesized in demo mode. Rows are append-only.
type RankObservation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time

	KeywordID uint `gorm:"not null;index"`

	Position  *int
	URLFound  string    `gorm:"type:varchar(512)"` // matched result URL, empty when not found
	Title     string    // matched result title
	Snippet   string    `gorm:"type:text"`
	Mode      string    `gorm:"type:varchar(16);default:live"` // live / demo
	FetchedAt time.Time `gorm:"index"`
}

// Sale is one imported sales row for a product, used for revenue stats.
type Sale struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time

	UserID    uint    `gorm:"not null;index"`
	ProductID uint    `gorm:"not null;index"`
	Product   Product `gorm:"foreignKey:ProductID"`

	Date    time.Time `gorm:"index"`
	Units   int       `gorm:"default:1"`
	Revenue int64     // cents
}
