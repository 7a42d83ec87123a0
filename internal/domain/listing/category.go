package listing

// Category is a fixed top-level listing category
type Category string

const (
	CategoryVehicles    Category = "vehicles"
	CategoryProperty    Category = "property"
	CategoryElectronics Category = "electronics"
	CategoryHomeGarden  Category = "home_garden"
	CategoryFashion     Category = "fashion"
	CategoryJobs        Category = "jobs"
	CategoryServices    Category = "services"
	CategoryHobbies     Category = "hobbies"
	CategoryPets        Category = "pets"
	CategoryOther       Category = "other"
)

// Categories returns the catalogue in display order
func Categories() []Category {
	return []Category{
		CategoryVehicles,
		CategoryProperty,
		CategoryElectronics,
		CategoryHomeGarden,
		CategoryFashion,
		CategoryJobs,
		CategoryServices,
		CategoryHobbies,
		CategoryPets,
		CategoryOther,
	}
}

// IsValid reports whether c belongs to the catalogue
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Condition describes the physical state of the item for sale
type Condition string

const (
	ConditionNew      Condition = "new"
	ConditionLikeNew  Condition = "like_new"
	ConditionGood     Condition = "good"
	ConditionFair     Condition = "fair"
	ConditionForParts Condition = "for_parts"
)

// IsValid reports whether c is a known condition
func (c Condition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionForParts:
		return true
	}
	return false
}
