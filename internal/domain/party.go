package domain

// RiderSnippet is a read-only rider projection used in match payloads.
type RiderSnippet struct {
	ID     string
	Name   string
	Phone  string
	Rating float64
}

// DriverSnippet is a read-only driver projection used in match payloads.
type DriverSnippet struct {
	ID           string
	Name         string
	Phone        string
	Rating       float64
	VehiclePlate string
}
