package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	custody "metrology-cloud/internal/custody/domain"
)

// Ledger is an in-memory custody ledger for demo/testing. It applies the
// same transition rules as the database-backed implementation.
type Ledger struct {
	mu      sync.Mutex
	nextID  int64
	records []custody.CustodyRecord
	events  []custody.StatusEvent
	certs   []custody.CalibrationCertificate

	// Optional display names keyed by employee id, used by ListCustody.
	EmployeeNames map[int64]string
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{EmployeeNames: make(map[int64]string)}
}

func (l *Ledger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *Ledger) openCustody(instrumentID int64) *custody.CustodyRecord {
	for i := range l.records {
		r := &l.records[i]
		if r.InstrumentID == instrumentID && r.Open() {
			return r
		}
	}
	return nil
}

// openShipment returns the most recent shipment still awaiting its receipt.
func (l *Ledger) openShipment(instrumentID int64) *custody.StatusEvent {
	var found *custody.StatusEvent
	for i := range l.events {
		e := &l.events[i]
		if e.InstrumentID != instrumentID || !e.OpenShipment() {
			continue
		}
		if found == nil || custody.MostRecent(*found, *e).ID == e.ID {
			found = e
		}
	}
	return found
}

// Assign opens a custody interval, closing any stray open events first.
func (l *Ledger) Assign(ctx context.Context, params custody.AssignParams) (*custody.CustodyRecord, *custody.StatusEvent, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := custody.CheckAssignable(l.openCustody(params.InstrumentID), l.openShipment(params.InstrumentID)); err != nil {
		return nil, nil, err
	}

	at := params.StartAt.UTC()
	for i := range l.events {
		e := &l.events[i]
		if e.InstrumentID == params.InstrumentID && e.Open() {
			stamp := at
			e.ReturnedAt = &stamp
		}
	}

	record := custody.CustodyRecord{
		ID:           l.id(),
		InstrumentID: params.InstrumentID,
		EmployeeID:   params.EmployeeID,
		StartAt:      at,
		Notes:        params.Notes,
		Active:       true,
		CreatedAt:    at,
		UpdatedAt:    at,
		EmployeeName: l.EmployeeNames[params.EmployeeID],
	}
	l.records = append(l.records, record)

	employeeID := params.EmployeeID
	event := custody.StatusEvent{
		ID:           l.id(),
		InstrumentID: params.InstrumentID,
		EmployeeID:   &employeeID,
		Kind:         custody.EventDelivered,
		EnteredAt:    at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	l.events = append(l.events, event)
	return &record, &event, nil
}

// Return closes the custody interval held by the employee.
func (l *Ledger) Return(ctx context.Context, params custody.ReturnParams) (*custody.CustodyRecord, *custody.StatusEvent, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	open := l.openCustody(params.InstrumentID)
	if err := custody.CheckReturnable(open, params.EmployeeID); err != nil {
		return nil, nil, err
	}

	at := params.ReturnAt.UTC()
	open.EndAt = &at
	open.Active = false
	open.UpdatedAt = at

	for i := range l.events {
		e := &l.events[i]
		if e.InstrumentID == params.InstrumentID && e.Open() {
			stamp := at
			e.ReturnedAt = &stamp
		}
	}

	employeeID := params.EmployeeID
	event := custody.StatusEvent{
		ID:           l.id(),
		InstrumentID: params.InstrumentID,
		EmployeeID:   &employeeID,
		Kind:         custody.EventReturned,
		EnteredAt:    at,
		ReturnedAt:   &at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	l.events = append(l.events, event)
	closed := *open
	return &closed, &event, nil
}

// Ship records a laboratory shipment. Any open custody is closed and stale
// receipt-less history is backfilled with the shipment time.
func (l *Ledger) Ship(ctx context.Context, params custody.ShipParams) (*custody.StatusEvent, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := custody.CheckShippable(l.openShipment(params.InstrumentID)); err != nil {
		return nil, err
	}

	at := params.SentAt.UTC()
	if open := l.openCustody(params.InstrumentID); open != nil {
		open.EndAt = &at
		open.Active = false
		open.UpdatedAt = at
	}
	for i := range l.events {
		e := &l.events[i]
		if e.InstrumentID == params.InstrumentID && e.Open() {
			stamp := at
			e.ReturnedAt = &stamp
		}
	}
	if stale := l.openShipment(params.InstrumentID); stale != nil {
		stamp := at
		stale.ReceivedAt = &stamp
	}

	labName := strings.TrimSpace(params.LabName)
	if labName == "" {
		labName = custody.DefaultLabName
	}
	event := custody.StatusEvent{
		ID:           l.id(),
		InstrumentID: params.InstrumentID,
		LaboratoryID: params.LaboratoryID,
		Kind:         custody.EventSentToLab,
		LabName:      labName,
		EnteredAt:    at,
		Notes:        params.Notes,
		CreatedAt:    at,
	}
	l.events = append(l.events, event)
	return &event, nil
}

// Receive stamps the receipt on the matching shipment and records the
// certificate.
func (l *Ledger) Receive(ctx context.Context, params custody.ReceiveParams) (*custody.StatusEvent, *custody.CalibrationCertificate, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := l.openShipment(params.InstrumentID)
	receivedAt := params.ReceivedAt.UTC()
	registeredAt := params.RegisteredAt.UTC()
	if matched != nil {
		matched.ReceivedAt = &receivedAt
		if matched.ReturnedAt == nil {
			matched.ReturnedAt = &receivedAt
		}
	}

	event := custody.StatusEvent{
		ID:           l.id(),
		InstrumentID: params.InstrumentID,
		EmployeeID:   params.ReceiverID,
		LaboratoryID: params.LaboratoryID,
		Kind:         custody.EventReceivedFromLab,
		LabName:      custody.ResolveLabName(params.LabName, matched),
		EnteredAt:    registeredAt,
		ReturnedAt:   &registeredAt,
		ReceivedAt:   &receivedAt,
		Notes:        params.Notes,
		CreatedAt:    registeredAt,
	}
	l.events = append(l.events, event)

	cert := custody.CalibrationCertificate{
		ID:        l.id(),
		EventID:   event.ID,
		Link:      params.CertificateLink,
		CreatedAt: registeredAt,
	}
	l.certs = append(l.certs, cert)
	return &event, &cert, nil
}

// LatestCertificate returns the newest certificate of the instrument.
func (l *Ledger) LatestCertificate(ctx context.Context, instrumentID int64) (*custody.CalibrationCertificate, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	byEvent := make(map[int64]custody.StatusEvent, len(l.events))
	for _, e := range l.events {
		byEvent[e.ID] = e
	}
	var found *custody.CalibrationCertificate
	for i := range l.certs {
		c := &l.certs[i]
		if byEvent[c.EventID].InstrumentID != instrumentID {
			continue
		}
		if found == nil || c.ID > found.ID {
			found = c
		}
	}
	if found == nil {
		return nil, nil
	}
	cert := *found
	return &cert, nil
}

// ListCustody returns a filtered custody page plus the unpaged total.
func (l *Ledger) ListCustody(ctx context.Context, filter custody.CustodyFilter) ([]custody.CustodyRecord, int, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []custody.CustodyRecord
	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, r := range l.records {
		switch filter.Status {
		case "open":
			if !r.Open() {
				continue
			}
		case "closed":
			if r.Open() {
				continue
			}
		}
		if needle != "" {
			haystack := strings.ToLower(r.EmployeeName + " " + r.EmployeeBadge + " " + r.InstrumentCode + " " + r.InstrumentDesc)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartAt.Equal(matched[j].StartAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].StartAt.After(matched[j].StartAt)
	})

	total := len(matched)
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= total {
		return []custody.CustodyRecord{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Events returns a copy of the event log for assertions in tests.
func (l *Ledger) Events(instrumentID int64) []custody.StatusEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []custody.StatusEvent
	for _, e := range l.events {
		if e.InstrumentID == instrumentID {
			out = append(out, e)
		}
	}
	return out
}
