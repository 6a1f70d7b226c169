package catalog

import "CatalogDash/internal/remote"

// Origin records where a product came from. Mutation logic branches on it
// to decide whether a remote write-through is worth attempting.
type Origin string

const (
	OriginSeeded Origin = "seeded"
	OriginLocal  Origin = "local"
)

// Local ids are allocated from customIDStart up, well above anything the
// remote service hands out, so id >= customIDStart always means Origin local.
const customIDStart = 1000

type Product struct {
	ID                 int     `json:"id"`
	Title              string  `json:"title"`
	Price              float64 `json:"price"`
	Category           string  `json:"category"`
	Stock              int     `json:"stock"`
	Description        string  `json:"description"`
	Brand              string  `json:"brand"`
	Thumbnail          string  `json:"thumbnail"`
	Rating             float64 `json:"rating"`
	DiscountPercentage float64 `json:"discountPercentage"`

	// Presentation hints set at mutation time, never cleared.
	IsNew     bool `json:"isNew,omitempty"`
	IsUpdated bool `json:"isUpdated,omitempty"`
	IsCustom  bool `json:"isCustom,omitempty"`

	Origin Origin `json:"-"`
}

// Draft carries caller-supplied fields for Create and Update. The store
// fabricates records from any draft as-is; input validation is the caller's
// responsibility.
type Draft struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Stock       int     `json:"stock"`
	Description string  `json:"description"`
	Brand       string  `json:"brand"`
	Thumbnail   string  `json:"thumbnail"`
}

const (
	defaultDescription = "Product description"
	defaultBrand       = "Generic"
	defaultThumbnail   = "https://via.placeholder.com/150"
	defaultRating      = 4.5
)

func fromRemote(rp remote.Product) Product {
	return Product{
		ID:                 rp.ID,
		Title:              rp.Title,
		Price:              rp.Price,
		Category:           rp.Category,
		Stock:              rp.Stock,
		Description:        rp.Description,
		Brand:              rp.Brand,
		Thumbnail:          rp.Thumbnail,
		Rating:             rp.Rating,
		DiscountPercentage: rp.DiscountPercentage,
		Origin:             OriginSeeded,
	}
}
