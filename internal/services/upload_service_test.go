package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

// fakeUploadAPI records every batch call in order.
type fakeUploadAPI struct {
	mu      sync.Mutex
	calls   []string
	failAt  int // 1-based call number that fails, 0 = never
	mintErr error
	block   chan struct{}
	// noValues makes trait value batches succeed without echoing anything
	noValues bool

	typeInputs []api.TraitTypeInput
	records    []models.RecursiveInscription
	nextID     int
}

func (f *fakeUploadAPI) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failAt == len(f.calls) {
		return &api.Error{Status: 500, Message: "storage unavailable"}
	}
	return nil
}

func (f *fakeUploadAPI) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeUploadAPI) CreateTraitTypes(_ context.Context, _ string, items []api.TraitTypeInput) ([]models.TraitType, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("types:%d", len(items))); err != nil {
		return nil, err
	}
	f.typeInputs = append(f.typeInputs, items...)
	out := make([]models.TraitType, 0, len(items))
	for _, it := range items {
		out = append(out, models.TraitType{ID: f.id("tt"), Name: it.Name, ZIndex: it.ZIndex})
	}
	return out, nil
}

func (f *fakeUploadAPI) CreateTraitValues(_ context.Context, _ string, items []api.TraitValueInput) ([]models.TraitValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("values:%s:%d", items[0].TraitTypeID, len(items))); err != nil {
		return nil, err
	}
	if f.noValues {
		return nil, nil
	}
	out := make([]models.TraitValue, 0, len(items))
	for _, it := range items {
		out = append(out, models.TraitValue{ID: f.id("tv"), Value: it.Value, TraitTypeID: it.TraitTypeID})
	}
	return out, nil
}

func (f *fakeUploadAPI) CreateRecursiveInscriptions(_ context.Context, _ string, items []models.RecursiveInscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("recursive:%d", len(items))); err != nil {
		return err
	}
	f.records = append(f.records, items...)
	return nil
}

func (f *fakeUploadAPI) CreateOneOfOneEditions(_ context.Context, _ string, items []api.OneOfOneInput) ([]models.OneOfOneEdition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("oneofone:%d", len(items))); err != nil {
		return nil, err
	}
	out := make([]models.OneOfOneEdition, 0, len(items))
	for _, it := range items {
		out = append(out, models.OneOfOneEdition{ID: f.id("oo"), Name: it.Name})
	}
	return out, nil
}

func (f *fakeUploadAPI) InvokeMint(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "mint")
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	return &models.Order{ID: orderID, Status: models.OrderStatusInProgress}, nil
}

type fakeRunStore struct {
	mu     sync.Mutex
	runs   map[string]*models.UploadRun
	status string
}

func (s *fakeRunStore) Create(_ context.Context, run *models.UploadRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string]*models.UploadRun)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) UpdateProgress(_ context.Context, id string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Done, s.runs[id].Total = done, total
	return nil
}

func (s *fakeRunStore) Finish(_ context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Status, s.runs[id].Error = status, errMsg
	s.status = status
	return nil
}

func newTestUploadService(fake *fakeUploadAPI, runs UploadRunStore) *UploadService {
	svc := NewUploadService(fake, runs, &recordingPublisher{}, &config.Config{UploadBatchSize: 10}, zap.NewNop())
	svc.readFile = func(path string) ([]byte, error) { return []byte(path), nil }
	return svc
}

func traitFiles(group string, n int) []TraitFile {
	out := make([]TraitFile, 0, n)
	for i := 0; i < n; i++ {
		v := fmt.Sprintf("%s-%02d", group, i)
		out = append(out, TraitFile{TraitType: group, Value: v, Path: filepath.Join("traits", group, v+".png")})
	}
	return out
}

// sampleUpload has 12 background, 3 body and 10 eyes files, 15 metadata
// entries and 11 one-of-one editions.
func sampleUpload() UploadRequest {
	var files []TraitFile
	files = append(files, traitFiles("Backgrounds", 12)...)
	files = append(files, traitFiles("Body", 3)...)
	files = append(files, traitFiles("Eyes", 10)...)

	var meta []MetadataEntry
	for i := 0; i < 15; i++ {
		meta = append(meta, MetadataEntry{
			Name: fmt.Sprintf("Item #%d", i+1),
			Attributes: []MetadataAttribute{
				{TraitType: "Body", Value: MetadataValue(fmt.Sprintf("Body-%02d", i%3))},
				{TraitType: "Eyes", Value: MetadataValue(fmt.Sprintf("Eyes-%02d", i%10))},
				{TraitType: "Background", Value: MetadataValue(fmt.Sprintf("Backgrounds-%02d", i%12))},
			},
		})
	}

	var oneOfOnes []string
	for i := 0; i < 11; i++ {
		oneOfOnes = append(oneOfOnes, filepath.Join("editions", fmt.Sprintf("legend-%d.png", i)))
	}

	return UploadRequest{CollectionID: "col-1", TraitFiles: files, Metadata: meta, OneOfOnes: oneOfOnes}
}

func TestUpload_BatchSequencing(t *testing.T) {
	fake := &fakeUploadAPI{}
	svc := newTestUploadService(fake, nil)

	result, err := svc.Upload(context.Background(), sampleUpload())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// trait type ids are tt-1 (Backgrounds), tt-2 (Body), tt-3 (Eyes)
	want := []string{
		"types:3",
		"values:tt-1:10", "values:tt-1:2",
		"values:tt-2:3",
		"values:tt-3:10",
		"recursive:10", "recursive:5",
		"oneofone:10", "oneofone:1",
	}
	if !reflect.DeepEqual(fake.calls, want) {
		t.Fatalf("call order:\n got %v\nwant %v", fake.calls, want)
	}

	wantTotal := 3 + 25 + 15 + 11
	if result.Progress.Current != wantTotal || result.Progress.Total != wantTotal {
		t.Errorf("progress = %d/%d, want %d/%d", result.Progress.Current, result.Progress.Total, wantTotal, wantTotal)
	}
	if len(result.TraitValues) != 25 || result.Recursive != 15 || len(result.OneOfOnes) != 11 {
		t.Errorf("result = %d values, %d recursive, %d one-of-one", len(result.TraitValues), result.Recursive, len(result.OneOfOnes))
	}
}

func TestUpload_RecursiveRecordsReferenceCreatedIDs(t *testing.T) {
	fake := &fakeUploadAPI{}
	svc := newTestUploadService(fake, nil)

	req := sampleUpload()
	req.OneOfOnes = nil
	if _, err := svc.Upload(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	first := fake.records[0]
	if first.Name != "Item #1" || len(first.Traits) != 3 {
		t.Fatalf("first record = %+v", first)
	}
	for _, tr := range first.Traits {
		if tr.TraitTypeID == "" || tr.TraitValueID == "" {
			t.Errorf("unresolved trait reference %+v", tr)
		}
	}
	if first.Traits[0].TraitTypeID != "tt-2" {
		t.Errorf("body trait type = %s, want tt-2", first.Traits[0].TraitTypeID)
	}
}

func TestUpload_ZIndexFromMetadata(t *testing.T) {
	fake := &fakeUploadAPI{}
	svc := newTestUploadService(fake, nil)

	if _, err := svc.Upload(context.Background(), sampleUpload()); err != nil {
		t.Fatal(err)
	}

	got := make(map[string]int)
	for _, in := range fake.typeInputs {
		got[in.Name] = in.ZIndex
	}
	want := map[string]int{"Body": 0, "Eyes": 1, "Backgrounds": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("z-indexes = %v, want %v", got, want)
	}
}

func TestResolveZIndexes(t *testing.T) {
	tests := []struct {
		name    string
		folders []string
		order   []string
		want    map[string]int
	}{
		{
			name:    "plural folder matches singular trait",
			folders: []string{"Backgrounds"},
			order:   []string{"Body", "Eyes", "Background"},
			want:    map[string]int{"Backgrounds": 2},
		},
		{
			name:    "case and whitespace ignored",
			folders: []string{"  EYES "},
			order:   []string{"Body", "eyes"},
			want:    map[string]int{"  EYES ": 1},
		},
		{
			name:    "substring containment",
			folders: []string{"Eye Color"},
			order:   []string{"Body", "Eyes"},
			want:    map[string]int{"Eye Color": 1},
		},
		{
			name:    "exact match wins over substring",
			folders: []string{"Eyes", "Eye Color"},
			order:   []string{"Eye Color", "Eyes"},
			want:    map[string]int{"Eyes": 1, "Eye Color": 0},
		},
		{
			name:    "unmatched folders get next available index",
			folders: []string{"Background", "Glow", "Aura"},
			order:   []string{"Background"},
			want:    map[string]int{"Background": 0, "Glow": 1, "Aura": 2},
		},
		{
			name:    "no metadata",
			folders: []string{"A", "B"},
			order:   nil,
			want:    map[string]int{"A": 0, "B": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveZIndexes(tt.folders, tt.order)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveZIndexes(%v, %v) = %v, want %v", tt.folders, tt.order, got, tt.want)
			}
		})
	}
}

func TestUpload_BatchFailureAborts(t *testing.T) {
	fake := &fakeUploadAPI{failAt: 3} // second trait value batch
	runs := &fakeRunStore{}
	svc := newTestUploadService(fake, runs)

	req := sampleUpload()
	req.OrderID = "order-1"
	result, err := svc.Upload(context.Background(), req)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if batchErr.Phase != models.UploadPhaseTraitValues || batchErr.BatchIndex != 1 {
		t.Errorf("batch error = %s #%d", batchErr.Phase, batchErr.BatchIndex)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Errorf("triggering error not preserved: %v", err)
	}
	if len(fake.calls) != 3 {
		t.Errorf("calls after failure: %v", fake.calls)
	}
	if result.Progress.Current != 13 {
		t.Errorf("progress = %d, want 13 (3 types + 10 values)", result.Progress.Current)
	}
	if runs.status != models.UploadStatusFailed {
		t.Errorf("run status = %s", runs.status)
	}
}

func TestUpload_MissingTraitValueIDsStopRecursivePhase(t *testing.T) {
	fake := &fakeUploadAPI{noValues: true}
	runs := &fakeRunStore{}
	svc := newTestUploadService(fake, runs)

	req := sampleUpload()
	req.OrderID = "order-1"
	_, err := svc.Upload(context.Background(), req)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if batchErr.Phase != models.UploadPhaseRecursive || batchErr.BatchIndex != 0 {
		t.Errorf("batch error = %s #%d", batchErr.Phase, batchErr.BatchIndex)
	}
	if len(fake.records) != 0 {
		t.Errorf("%d recursive records submitted", len(fake.records))
	}
	for _, call := range fake.calls {
		if strings.HasPrefix(call, "recursive:") || strings.HasPrefix(call, "oneofone:") || call == "mint" {
			t.Errorf("unexpected call after failed id lookup: %s", call)
		}
	}
	if runs.status != models.UploadStatusFailed {
		t.Errorf("run status = %s", runs.status)
	}
}

func TestUpload_MintFailureIsNotFatal(t *testing.T) {
	fake := &fakeUploadAPI{mintErr: errors.New("mint queue full")}
	runs := &fakeRunStore{}
	svc := newTestUploadService(fake, runs)

	req := sampleUpload()
	req.OrderID = "order-1"
	result, err := svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.MintErr == nil {
		t.Error("mint error not reported")
	}
	if last := fake.calls[len(fake.calls)-1]; last != "mint" {
		t.Errorf("last call = %s, want mint", last)
	}
	if runs.status != models.UploadStatusMintWarn {
		t.Errorf("run status = %s", runs.status)
	}
}

func TestUpload_ProgressIsMonotonic(t *testing.T) {
	fake := &fakeUploadAPI{}
	svc := newTestUploadService(fake, nil)

	var seen []models.UploadProgress
	req := sampleUpload()
	req.OnProgress = func(p models.UploadProgress) { seen = append(seen, p) }
	if _, err := svc.Upload(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 9 {
		t.Fatalf("progress callbacks = %d, want one per batch (9)", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Current <= seen[i-1].Current {
			t.Errorf("progress went from %d to %d", seen[i-1].Current, seen[i].Current)
		}
	}
	if last := seen[len(seen)-1]; last.Current != last.Total {
		t.Errorf("final progress %d/%d", last.Current, last.Total)
	}
}

func TestUpload_UnknownMetadataValueFailsBeforeSubmission(t *testing.T) {
	fake := &fakeUploadAPI{}
	svc := newTestUploadService(fake, nil)

	req := sampleUpload()
	req.Metadata[4].Attributes[1].Value = "Laser"
	if _, err := svc.Upload(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 0 {
		t.Errorf("submitted %v before failing", fake.calls)
	}
}

func TestUpload_OneRunPerCollection(t *testing.T) {
	fake := &fakeUploadAPI{block: make(chan struct{})}
	svc := newTestUploadService(fake, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Upload(context.Background(), UploadRequest{RunID: "run-1", CollectionID: "col-1", TraitFiles: traitFiles("Body", 1)})
		done <- err
	}()

	for {
		if id, ok := svc.ActiveRun("col-1"); ok {
			if id != "run-1" {
				t.Fatalf("active run = %s", id)
			}
			break
		}
	}

	if _, err := svc.Upload(context.Background(), UploadRequest{CollectionID: "col-1"}); !errors.Is(err, ErrUploadInProgress) {
		t.Errorf("expected ErrUploadInProgress, got %v", err)
	}
	close(fake.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.ActiveRun("col-1"); ok {
		t.Error("run still marked active")
	}
}

func TestCollectTraitFilesAndMetadata(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("traits/Backgrounds/Blue.png", "png")
	write("traits/Backgrounds/Red.PNG", "png")
	write("traits/Eyes/Laser.webp", "webp")
	write("traits/Eyes/notes.txt", "ignored")
	write("traits/.cache/x.png", "ignored")
	write("meta.json", `[{"name":"One","attributes":[{"trait_type":"Background","value":"Blue"},{"trait_type":"Eyes","value":"Laser"},{"trait_type":"Level","value":3}]}]`)
	write("editions/b.png", "png")
	write("editions/a.jpg", "jpg")

	req, err := BuildUploadRequest(models.TraitUploadInput{
		TraitsDir:    filepath.Join(root, "traits"),
		MetadataPath: filepath.Join(root, "meta.json"),
		OneOfOneDir:  filepath.Join(root, "editions"),
	}, "col-1", "")
	if err != nil {
		t.Fatalf("BuildUploadRequest: %v", err)
	}

	var got []string
	for _, f := range req.TraitFiles {
		got = append(got, f.TraitType+"/"+f.Value)
	}
	want := []string{"Backgrounds/Blue", "Backgrounds/Red", "Eyes/Laser"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("trait files = %v, want %v", got, want)
	}
	if len(req.Metadata) != 1 || req.Metadata[0].Attributes[2].Value != "3" {
		t.Errorf("metadata = %+v", req.Metadata)
	}
	if len(req.OneOfOnes) != 2 || filepath.Base(req.OneOfOnes[0]) != "a.jpg" {
		t.Errorf("one-of-ones = %v", req.OneOfOnes)
	}

	if _, err := CollectTraitFiles(filepath.Join(root, "editions")); err == nil {
		t.Error("expected error for images outside a trait folder")
	}
}
