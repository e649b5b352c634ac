package domain

// Location is a place a user operates from.
type Location struct {
	ID   int64
	Name string
	Lat  float64
	Lng  float64
}

func (l Location) String() string {
	return l.Name
}
