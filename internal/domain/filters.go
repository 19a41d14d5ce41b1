package domain

// Filters is the structured search intent extracted from a natural-language
// query. Every field is optional; a nil field places no constraint. Prices
// are whole euros, surfaces square meters.
type Filters struct {
	ListingType    *ListingType  `json:"listing_type,omitempty"`
	PropertyType   *PropertyType `json:"property_type,omitempty"`
	PriceMin       *int          `json:"price_min,omitempty"`
	PriceMax       *int          `json:"price_max,omitempty"`
	Location       *string       `json:"location,omitempty"`
	RoomsMin       *int          `json:"rooms_min,omitempty"`
	RoomsMax       *int          `json:"rooms_max,omitempty"`
	SurfaceAreaMin *float64      `json:"surface_area_min,omitempty"`
	SurfaceAreaMax *float64      `json:"surface_area_max,omitempty"`
	HasParking     *bool         `json:"has_parking,omitempty"`
	HasBalcony     *bool         `json:"has_balcony,omitempty"`
	HasGarage      *bool         `json:"has_garage,omitempty"`
	IsFurnished    *bool         `json:"is_furnished,omitempty"`
	Amenities      []string      `json:"amenities,omitempty"`
}

// Merge overlays newer on top of f: fields present in newer override, fields
// absent in newer are preserved. Amenities are replaced wholesale when newer
// carries any. The receiver is not modified.
func (f Filters) Merge(newer Filters) Filters {
	out := f
	if newer.ListingType != nil {
		out.ListingType = newer.ListingType
	}
	if newer.PropertyType != nil {
		out.PropertyType = newer.PropertyType
	}
	if newer.PriceMin != nil {
		out.PriceMin = newer.PriceMin
	}
	if newer.PriceMax != nil {
		out.PriceMax = newer.PriceMax
	}
	if newer.Location != nil {
		out.Location = newer.Location
	}
	if newer.RoomsMin != nil {
		out.RoomsMin = newer.RoomsMin
	}
	if newer.RoomsMax != nil {
		out.RoomsMax = newer.RoomsMax
	}
	if newer.SurfaceAreaMin != nil {
		out.SurfaceAreaMin = newer.SurfaceAreaMin
	}
	if newer.SurfaceAreaMax != nil {
		out.SurfaceAreaMax = newer.SurfaceAreaMax
	}
	if newer.HasParking != nil {
		out.HasParking = newer.HasParking
	}
	if newer.HasBalcony != nil {
		out.HasBalcony = newer.HasBalcony
	}
	if newer.HasGarage != nil {
		out.HasGarage = newer.HasGarage
	}
	if newer.IsFurnished != nil {
		out.IsFurnished = newer.IsFurnished
	}
	if len(newer.Amenities) > 0 {
		out.Amenities = newer.Amenities
	}
	return out
}

// Searchable reports whether the filters constrain at least one of the
// high-signal fields worth running a search for.
func (f Filters) Searchable() bool {
	return f.ListingType != nil || f.PropertyType != nil || f.PriceMax != nil ||
		f.Location != nil || f.RoomsMin != nil || f.RoomsMax != nil
}

// ActiveCount returns the number of constrained fields, counting the
// amenities list as one.
func (f Filters) ActiveCount() int {
	n := 0
	for _, set := range []bool{
		f.ListingType != nil, f.PropertyType != nil,
		f.PriceMin != nil, f.PriceMax != nil,
		f.Location != nil,
		f.RoomsMin != nil, f.RoomsMax != nil,
		f.SurfaceAreaMin != nil, f.SurfaceAreaMax != nil,
		f.HasParking != nil, f.HasBalcony != nil,
		f.HasGarage != nil, f.IsFurnished != nil,
		len(f.Amenities) > 0,
	} {
		if set {
			n++
		}
	}
	return n
}

// Confidence reports how sure the extractor is about what it parsed.
// Overall and per-field scores are in [0, 1]; AmbiguousFields lists fields
// the model flagged as needing clarification.
type Confidence struct {
	Overall         float64            `json:"overall"`
	PerField        map[string]float64 `json:"per_field,omitempty"`
	AmbiguousFields []string           `json:"ambiguous_fields,omitempty"`
}
