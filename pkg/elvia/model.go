package elvia

import "github.com/go-openapi/strfmt"

// MetersResult is the outcome of a meters call. StatusCode is always set, even
// when the API rejected the request.
type MetersResult struct {
	StatusCode     int
	MeteringPoints []MeteringPoint
}

// OK reports whether the API accepted the token.
func (r *MetersResult) OK() bool {
	return r != nil && r.StatusCode == 200
}

type metersResponse struct {
	MeteringPoints []MeteringPoint `json:"meteringpoints"`
}

type MeteringPoint struct {
	MeteringPointId string          `json:"meteringPointId"`
	CustomerId      string          `json:"customerId,omitempty"`
	MeterNumber     string          `json:"meterNumber,omitempty"`
	AccessFrom      strfmt.DateTime `json:"accessFrom,omitempty"`
	Address         *Address        `json:"address,omitempty"`
	Production      bool            `json:"production,omitempty"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	City    string `json:"city,omitempty"`
}
