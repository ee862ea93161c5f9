package importer

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config drives CSV parsing of legacy spreadsheets. Column aliases map the
// canonical field names onto the headers found in the wild.
type Config struct {
	Delimiter   string              `yaml:"delimiter"`
	DateFormats []string            `yaml:"date_formats"`
	Aliases     map[string][]string `yaml:"aliases"`
}

// Canonical field names resolvable through aliases.
const (
	FieldInstrumentCode  = "instrument_code"
	FieldEmployeeBadge   = "employee_badge"
	FieldDate            = "date"
	FieldReturnDate      = "return_date"
	FieldLabName         = "lab_name"
	FieldCertificateLink = "certificate_link"
	FieldPointSequence   = "point_sequence"
	FieldOutcome         = "outcome"
	FieldUncertainty     = "uncertainty"
	FieldTrend           = "trend"
	FieldNotes           = "notes"
)

// LoadConfig loads importer config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("IMPORTER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var override Config
		if err := yaml.Unmarshal(data, &override); err != nil {
			return cfg, err
		}
		if override.Delimiter != "" {
			cfg.Delimiter = override.Delimiter
		}
		if len(override.DateFormats) > 0 {
			cfg.DateFormats = override.DateFormats
		}
		for field, aliases := range override.Aliases {
			cfg.Aliases[field] = append(cfg.Aliases[field], aliases...)
		}
	}

	if formats := splitCSV(os.Getenv("IMPORTER_DATE_FORMATS")); len(formats) > 0 {
		cfg.DateFormats = formats
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		DateFormats: []string{
			"2006-01-02",
			"02/01/2006",
			"2006-01-02 15:04:05",
			"02/01/2006 15:04",
			"2006-01-02T15:04:05Z07:00",
		},
		Aliases: map[string][]string{
			FieldInstrumentCode:  {"instrument", "code", "tag", "equipamento", "codigo"},
			FieldEmployeeBadge:   {"badge", "employee", "matricula", "cracha"},
			FieldDate:            {"data", "delivered_at", "sent_at", "received_at", "entered_at"},
			FieldReturnDate:      {"returned_at", "devolucao", "data_devolucao"},
			FieldLabName:         {"lab", "laboratory", "laboratorio"},
			FieldCertificateLink: {"certificate", "certificado", "link"},
			FieldPointSequence:   {"point", "sequence", "ponto"},
			FieldOutcome:         {"result", "resultado"},
			FieldUncertainty:     {"incerteza"},
			FieldTrend:           {"tendencia"},
			FieldNotes:           {"obs", "observacao", "remarks"},
		},
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
