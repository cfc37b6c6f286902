package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxguard/rxguard/internal/domain/ai"
	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/dose"
	"github.com/rxguard/rxguard/internal/domain/prescription"
	"github.com/rxguard/rxguard/internal/domain/sut"
	"github.com/rxguard/rxguard/internal/platform/llm"
)

// memArchive is an in-memory ArchiveRepository for orchestrator tests.
type memArchive struct {
	mu      sync.Mutex
	results map[string]*decision.Result
	order   []string
	logs    []decision.ProcessingLog
	onSave  func(*decision.Result)
}

func newMemArchive() *memArchive {
	return &memArchive{results: make(map[string]*decision.Result)}
}

func (m *memArchive) Save(ctx context.Context, r *decision.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[r.PrescriptionID]; !ok {
		m.order = append(m.order, r.PrescriptionID)
	}
	m.results[r.PrescriptionID] = r
	if m.onSave != nil {
		m.onSave(r)
	}
	return nil
}

func (m *memArchive) GetByPrescriptionID(ctx context.Context, id string) (*decision.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, decision.ErrNotFound
	}
	return r, nil
}

func (m *memArchive) List(ctx context.Context, limit, offset int) ([]*decision.Result, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*decision.Result, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.results[id])
	}
	return out, len(out), nil
}

func (m *memArchive) CountByDecision(ctx context.Context) (map[decision.Action]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[decision.Action]int)
	for _, r := range m.results {
		counts[r.FinalDecision]++
	}
	return counts, nil
}

func (m *memArchive) AppendLog(ctx context.Context, id, action, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, decision.ProcessingLog{
		PrescriptionID: id, Action: action, Details: details, Timestamp: time.Now(),
	})
	return nil
}

func (m *memArchive) ListLogs(ctx context.Context, id string) ([]*decision.ProcessingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*decision.ProcessingLog
	for i := range m.logs {
		if m.logs[i].PrescriptionID == id {
			out = append(out, &m.logs[i])
		}
	}
	return out, nil
}

// cacheStub is a prefilled dose cache.
type cacheStub struct {
	ingredients map[string]string
	doses       map[string]string
	codes       map[string][]string
}

func newCacheStub() *cacheStub {
	return &cacheStub{
		ingredients: map[string]string{"VEMLIDY": "TENOFOVIR ALAFENAMID"},
		doses:       map[string]string{"R100001|TENOFOVIR ALAFENAMID": "30"},
		codes:       make(map[string][]string),
	}
}

func (c *cacheStub) GetIngredient(ctx context.Context, name string) (string, error) {
	if v, ok := c.ingredients[name]; ok {
		return v, nil
	}
	return "", dose.ErrCacheMiss
}

func (c *cacheStub) PutIngredient(ctx context.Context, name, ingredient string) error {
	c.ingredients[name] = ingredient
	return nil
}

func (c *cacheStub) GetReportDose(ctx context.Context, code, ingredient string) (string, error) {
	if v, ok := c.doses[code+"|"+ingredient]; ok {
		return v, nil
	}
	return "", dose.ErrCacheMiss
}

func (c *cacheStub) PutReportDose(ctx context.Context, code, ingredient, authorized string) error {
	c.doses[code+"|"+ingredient] = authorized
	return nil
}

func (c *cacheStub) GetMessageCodes(ctx context.Context, name string) ([]string, error) {
	if v, ok := c.codes[name]; ok {
		return v, nil
	}
	return nil, dose.ErrCacheMiss
}

func (c *cacheStub) PutMessageCodes(ctx context.Context, name string, codes []string) error {
	c.codes[name] = codes
	return nil
}

// scriptedLLM returns a fixed response (or error) for every completion.
type scriptedLLM struct {
	response string
	err      error
}

func (s *scriptedLLM) Name() string  { return "scripted" }
func (s *scriptedLLM) Model() string { return "test" }
func (s *scriptedLLM) Complete(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	return s.response, s.err
}

const approveJSON = `{"action": "approve", "confidence": 0.9, "reason": "clinically appropriate"}`

func newTestService(archive decision.ArchiveRepository, client llm.Client) *Service {
	cache := newCacheStub()
	doseSvc := dose.NewService(cache, nil, zerolog.Nop())
	sutSvc := sut.NewService(nil)
	aiSvc := ai.NewService(sutSvc, client, llm.Options{}, zerolog.Nop())
	return NewService(doseSvc, sutSvc, aiSvc, archive, 0, 0.85, zerolog.Nop())
}

func todaysDate() string { return time.Now().Format("02/01/2006") }

// compliantFixture is a fully compliant prescription: reported drug within
// dose, matching diagnosis, required message code, valid patient and date.
func compliantFixture(id string) prescription.Prescription {
	return prescription.Prescription{
		PrescriptionID: id,
		Patient:        prescription.Patient{NationalID: "12345678901", Name: "Test Patient"},
		Date:           todaysDate(),
		Drugs: []prescription.Drug{
			{Name: "VEMLIDY", Quantity: "30", ReportCode: "R100001"},
		},
		DrugMessages: []prescription.DrugMessage{{Code: "1013"}},
		Report: &prescription.Report{
			ReportID:  "RPT-1",
			Diagnoses: prescription.DiagnosisList{"B18.1"},
		},
	}
}

func TestProcessSingleAllApprove(t *testing.T) {
	archive := newMemArchive()
	svc := newTestService(archive, &scriptedLLM{response: approveJSON})

	p := compliantFixture("P1")
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "batch-1")

	if r.Dose.Action != decision.Approve {
		t.Errorf("dose = %s (%s), want approve", r.Dose.Action, r.Dose.Reason)
	}
	if r.Sut.Action != decision.Approve {
		t.Errorf("sut = %s (%s), want approve", r.Sut.Action, r.Sut.Reason)
	}
	if r.AI.Action != decision.Approve {
		t.Errorf("ai = %s (%s), want approve", r.AI.Action, r.AI.Reason)
	}
	if r.FinalDecision != decision.Approve {
		t.Errorf("final = %s, want approve", r.FinalDecision)
	}
	if r.Metadata.BatchID != "batch-1" {
		t.Errorf("batch id = %q", r.Metadata.BatchID)
	}

	stored, err := archive.GetByPrescriptionID(context.Background(), "P1")
	if err != nil {
		t.Fatalf("result not archived: %v", err)
	}
	if stored.FinalDecision != decision.Approve {
		t.Errorf("archived final = %s", stored.FinalDecision)
	}
	logs, _ := archive.ListLogs(context.Background(), "P1")
	if len(logs) == 0 {
		t.Error("no audit log appended")
	}
}

func TestProcessSingleDoseRejectDominates(t *testing.T) {
	svc := newTestService(newMemArchive(), &scriptedLLM{response: approveJSON})

	p := compliantFixture("P2")
	p.Drugs[0].Quantity = "120"
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	if r.Dose.Action != decision.Reject {
		t.Fatalf("dose = %s (%s), want reject", r.Dose.Action, r.Dose.Reason)
	}
	if r.FinalDecision != decision.Reject {
		t.Errorf("final = %s, want reject", r.FinalDecision)
	}
	if len(r.Details.Violations) == 0 {
		t.Error("dose violation not surfaced in details")
	}
}

func TestProcessSingleSutRejectWins(t *testing.T) {
	svc := newTestService(newMemArchive(), &scriptedLLM{response: approveJSON})

	// wrong diagnosis, no report id, missing required message code
	p := prescription.Prescription{
		PrescriptionID: "P3",
		Patient:        prescription.Patient{NationalID: "12345678901", Name: "Test"},
		Date:           todaysDate(),
		Drugs: []prescription.Drug{
			{Name: "VEMLIDY", Quantity: "30", ReportCode: "R100001"},
		},
		Report: &prescription.Report{Diagnoses: prescription.DiagnosisList{"E11"}},
	}
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	if r.Sut.Action != decision.Reject {
		t.Fatalf("sut = %s (%s), want reject", r.Sut.Action, r.Sut.Reason)
	}
	if r.Dose.Action != decision.Approve {
		t.Errorf("dose = %s (%s), want approve", r.Dose.Action, r.Dose.Reason)
	}
	if r.AI.Action != decision.Hold {
		t.Errorf("ai = %s (%s), want hold on disagreement", r.AI.Action, r.AI.Reason)
	}
	if r.FinalDecision != decision.Reject {
		t.Errorf("final = %s, want reject", r.FinalDecision)
	}
}

func TestProcessSingleNoReportedDrugsHolds(t *testing.T) {
	svc := newTestService(newMemArchive(), &scriptedLLM{response: approveJSON})

	p := prescription.Prescription{
		PrescriptionID: "P4",
		Patient:        prescription.Patient{NationalID: "12345678901", Name: "Test"},
		Date:           todaysDate(),
		Drugs:          []prescription.Drug{{Name: "PARACETAMOL", Quantity: "20"}},
	}
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	if r.Dose.Action != decision.Hold {
		t.Errorf("dose = %s (%s), want hold", r.Dose.Action, r.Dose.Reason)
	}
	if r.Sut.Action != decision.Approve {
		t.Errorf("sut = %s (%s), want approve", r.Sut.Action, r.Sut.Reason)
	}
	if r.FinalDecision != decision.Hold {
		t.Errorf("final = %s, want hold", r.FinalDecision)
	}
}

func TestProcessSingleInvalidRecord(t *testing.T) {
	archive := newMemArchive()
	svc := newTestService(archive, &scriptedLLM{response: approveJSON})

	p := prescription.Prescription{Patient: prescription.Patient{Name: "Anon"}}
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	if r.FinalDecision != decision.Error {
		t.Fatalf("final = %s, want error", r.FinalDecision)
	}
	if len(r.Details.Issues) == 0 {
		t.Error("validation issue not recorded")
	}
}

func TestProcessSingleLLMFallback(t *testing.T) {
	svc := newTestService(newMemArchive(), &scriptedLLM{err: errors.New("rate limited")})

	p := compliantFixture("P6")
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	// the AI analyzer degrades to the SUT verdict, so the decision is still
	// computed normally
	if r.AI.Action != decision.Approve {
		t.Errorf("ai fallback = %s (%s), want approve", r.AI.Action, r.AI.Reason)
	}
	if r.AI.Method != ai.MethodSutFallback {
		t.Errorf("ai method = %q, want sut_fallback", r.AI.Method)
	}
	if r.FinalDecision != decision.Approve {
		t.Errorf("final = %s, want approve", r.FinalDecision)
	}
}

func TestProcessSingleLowConfidenceHolds(t *testing.T) {
	lowConfidence := `{"action": "approve", "confidence": 0.4, "reason": "uncertain"}`
	svc := newTestService(newMemArchive(), &scriptedLLM{response: lowConfidence})

	p := compliantFixture("P7")
	r := svc.ProcessSingle(context.Background(), &p, dose.ModeFast, "")

	if r.AI.Action != decision.Approve {
		t.Fatalf("ai = %s (%s), want approve", r.AI.Action, r.AI.Reason)
	}
	if r.FinalDecision != decision.Hold {
		t.Errorf("final = %s, want hold below the auto-approve threshold", r.FinalDecision)
	}
}

func TestProcessBatchCountersAndOrder(t *testing.T) {
	archive := newMemArchive()
	svc := newTestService(archive, &scriptedLLM{response: approveJSON})

	reject := compliantFixture("B2")
	reject.Drugs[0].Quantity = "120"
	records := []prescription.Prescription{
		compliantFixture("B1"),
		reject,
		{}, // invalid: no prescription_id
	}

	results, stats, err := svc.ProcessBatch(context.Background(), records, dose.ModeFast)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].PrescriptionID != "B1" || results[1].PrescriptionID != "B2" {
		t.Error("input order not preserved")
	}
	if stats.Total != 3 || stats.Approved != 1 || stats.Rejected != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.BatchID == "" {
		t.Error("batch id not assigned")
	}
	for _, r := range results {
		if r.Metadata.BatchID != stats.BatchID {
			t.Errorf("result %s carries batch %q", r.PrescriptionID, r.Metadata.BatchID)
		}
	}
}

func TestProcessBatchContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	archive := newMemArchive()
	archive.onSave = func(*decision.Result) { cancel() }
	svc := newTestService(archive, &scriptedLLM{response: approveJSON})

	records := []prescription.Prescription{
		compliantFixture("C1"), compliantFixture("C2"), compliantFixture("C3"),
	}
	results, _, err := svc.ProcessBatch(ctx, records, dose.ModeFast)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 completed result before abort, got %d", len(results))
	}
}

func TestProcessBatchRerunIsIdempotent(t *testing.T) {
	archive := newMemArchive()
	svc := newTestService(archive, &scriptedLLM{response: approveJSON})
	records := []prescription.Prescription{compliantFixture("R1")}

	first, _, err := svc.ProcessBatch(context.Background(), records, dose.ModeFast)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := svc.ProcessBatch(context.Background(), records, dose.ModeFast)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].FinalDecision != second[0].FinalDecision {
		t.Errorf("rerun changed decision: %s then %s",
			first[0].FinalDecision, second[0].FinalDecision)
	}
	if got := len(archive.order); got != 1 {
		t.Errorf("rerun duplicated the archive row: %d rows", got)
	}
}

func TestProcessFromFileMissing(t *testing.T) {
	svc := newTestService(newMemArchive(), &scriptedLLM{response: approveJSON})
	if _, _, err := svc.ProcessFromFile(context.Background(), "/does/not/exist.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStatsCount(t *testing.T) {
	var s Stats
	for _, a := range []decision.Action{
		decision.Approve, decision.Reject, decision.Hold, decision.Error, decision.Hold,
	} {
		s.count(a)
	}
	if s.Approved != 1 || s.Rejected != 1 || s.Held != 2 || s.Errors != 1 {
		t.Errorf("counters = %+v", s)
	}
}
