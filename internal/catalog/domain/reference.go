package catalog

import "time"

// InstrumentType classifies instruments (caliper, micrometer, tape...).
type InstrumentType struct {
	ID              int64
	Description     string
	QualityDocument string
	Active          bool
}

// Sector is an organizational unit referenced by employees.
type Sector struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Laboratory is an external calibration laboratory.
type Laboratory struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employee holds custody of instruments and signs off point analyses.
type Employee struct {
	ID        int64
	Badge     string
	Name      string
	Email     string
	Position  string
	SectorID  *int64
	Phone     string
	Active    bool
	HiredAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
