package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/metrics"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type UploadAPI interface {
	CreateTraitTypes(ctx context.Context, collectionID string, items []api.TraitTypeInput) ([]models.TraitType, error)
	CreateTraitValues(ctx context.Context, collectionID string, items []api.TraitValueInput) ([]models.TraitValue, error)
	CreateRecursiveInscriptions(ctx context.Context, collectionID string, items []models.RecursiveInscription) error
	CreateOneOfOneEditions(ctx context.Context, collectionID string, items []api.OneOfOneInput) ([]models.OneOfOneEdition, error)
	InvokeMint(ctx context.Context, orderID string) (*models.Order, error)
}

// UploadRunStore records upload history. Optional.
type UploadRunStore interface {
	Create(ctx context.Context, run *models.UploadRun) error
	UpdateProgress(ctx context.Context, id string, done, total int) error
	Finish(ctx context.Context, id, status, errMsg string) error
}

// TraitFile is one image of a trait value. TraitType is the folder it was found in.
type TraitFile struct {
	TraitType string
	Value     string
	Path      string
}

type MetadataEntry struct {
	Name       string              `json:"name"`
	Attributes []MetadataAttribute `json:"attributes"`
}

type MetadataAttribute struct {
	TraitType string        `json:"trait_type"`
	Value     MetadataValue `json:"value"`
}

// MetadataValue accepts both string and numeric trait values.
type MetadataValue string

func (v *MetadataValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = MetadataValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("trait value must be a string or a number, got %s", b)
	}
	*v = MetadataValue(n.String())
	return nil
}

type UploadRequest struct {
	RunID        string
	CollectionID string
	// OrderID enables the mint trigger after the last batch.
	OrderID    string
	TraitFiles []TraitFile
	Metadata   []MetadataEntry
	OneOfOnes  []string
	OnProgress func(models.UploadProgress)
}

type UploadResult struct {
	RunID       string
	TraitTypes  []models.TraitType
	TraitValues []models.TraitValue
	Recursive   int
	OneOfOnes   []models.OneOfOneEdition
	Progress    models.UploadProgress
	// MintErr is set when the mint trigger failed; the upload itself succeeded.
	MintErr error
}

// UploadService submits a collection's files to the API in fixed-size,
// strictly sequential batches.
type UploadService struct {
	api       UploadAPI
	runs      UploadRunStore
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	limiter   *rate.Limiter
	readFile  func(string) ([]byte, error)

	mu     sync.Mutex
	active map[string]string // collection id -> run id
}

func NewUploadService(uploadAPI UploadAPI, runs UploadRunStore, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *UploadService {
	limit := rate.Inf
	if cfg.UploadBatchesPerSecond > 0 {
		limit = rate.Limit(cfg.UploadBatchesPerSecond)
	}
	return &UploadService{
		api:       uploadAPI,
		runs:      runs,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		limiter:   rate.NewLimiter(limit, 1),
		readFile:  os.ReadFile,
		active:    make(map[string]string),
	}
}

func (s *UploadService) batchSize() int {
	if s.cfg.UploadBatchSize > 0 {
		return s.cfg.UploadBatchSize
	}
	return 10
}

// ActiveRun returns the id of the upload running for collectionID, if any.
func (s *UploadService) ActiveRun(collectionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[collectionID]
	return id, ok
}

func (s *UploadService) begin(collectionID, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[collectionID]; ok {
		return false
	}
	s.active[collectionID] = runID
	return true
}

func (s *UploadService) end(collectionID string) {
	s.mu.Lock()
	delete(s.active, collectionID)
	s.mu.Unlock()
}

// Upload runs trait types, trait values (group by group), recursive records
// and one-of-one editions. A failed batch aborts the rest; batches already
// accepted by the API stay there.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.CollectionID == "" {
		return nil, errors.New("upload: collection id is required")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	plan, err := buildUploadPlan(req)
	if err != nil {
		return nil, err
	}
	if !s.begin(req.CollectionID, req.RunID) {
		return nil, ErrUploadInProgress
	}
	defer s.end(req.CollectionID)

	log := s.log.With(zap.String("run_id", req.RunID), zap.String("collection_id", req.CollectionID))
	log.Info("upload started",
		zap.Int("trait_types", len(plan.groups)),
		zap.Int("trait_values", len(req.TraitFiles)),
		zap.Int("recursive", len(plan.records)),
		zap.Int("one_of_one", len(req.OneOfOnes)),
		zap.Int("total", plan.total))

	s.startRun(ctx, req, plan.total, log)

	progress := &uploadProgress{
		svc:          s,
		req:          req,
		log:          log,
		state:        models.UploadProgress{RunID: req.RunID, Total: plan.total},
		collectionID: req.CollectionID,
	}
	result := &UploadResult{RunID: req.RunID}

	if err := s.submit(ctx, req, plan, progress, result); err != nil {
		log.Error("upload aborted", zap.Int("current", progress.state.Current), zap.Error(err))
		s.finishRun(req.RunID, models.UploadStatusFailed, err.Error(), log)
		result.Progress = progress.state
		return result, err
	}

	status := models.UploadStatusDone
	if req.OrderID != "" {
		if _, err := s.api.InvokeMint(ctx, req.OrderID); err != nil {
			log.Warn("mint trigger failed, upload kept", zap.String("order_id", req.OrderID), zap.Error(err))
			metrics.ObserveUploadBatch(models.UploadPhaseMint, err)
			result.MintErr = err
			status = models.UploadStatusMintWarn
		} else {
			metrics.ObserveUploadBatch(models.UploadPhaseMint, nil)
		}
	}

	s.finishRun(req.RunID, status, errString(result.MintErr), log)
	result.Progress = progress.state
	log.Info("upload finished", zap.String("status", status), zap.Int("total", plan.total))
	return result, nil
}

func (s *UploadService) submit(ctx context.Context, req UploadRequest, plan *uploadPlan, progress *uploadProgress, result *UploadResult) error {
	size := s.batchSize()

	typeInputs := make([]api.TraitTypeInput, 0, len(plan.groups))
	for _, g := range plan.groups {
		typeInputs = append(typeInputs, api.TraitTypeInput{Name: g.name, ZIndex: g.zIndex})
	}
	typeIDs := make(map[string]string, len(plan.groups))
	for i, batch := range chunk(typeInputs, size) {
		err := s.submitBatch(ctx, models.UploadPhaseTraitTypes, i, func() error {
			created, err := s.api.CreateTraitTypes(ctx, req.CollectionID, batch)
			if err != nil {
				return err
			}
			for j, tt := range created {
				name := tt.Name
				if name == "" && j < len(batch) {
					name = batch[j].Name
				}
				typeIDs[strings.ToLower(name)] = tt.ID
			}
			result.TraitTypes = append(result.TraitTypes, created...)
			return nil
		})
		if err != nil {
			return err
		}
		progress.advance(ctx, models.UploadPhaseTraitTypes, i, len(batch))
	}

	valueIDs := make(map[string]string, len(req.TraitFiles))
	valueBatch := 0
	for _, g := range plan.groups {
		typeID, ok := typeIDs[strings.ToLower(g.name)]
		if !ok {
			return &BatchError{Phase: models.UploadPhaseTraitValues, BatchIndex: valueBatch, Err: fmt.Errorf("no trait type id returned for %q", g.name)}
		}
		for _, batch := range chunk(g.files, size) {
			idx := valueBatch
			err := s.submitBatch(ctx, models.UploadPhaseTraitValues, idx, func() error {
				inputs := make([]api.TraitValueInput, 0, len(batch))
				for _, f := range batch {
					data, err := s.readFile(f.Path)
					if err != nil {
						return fmt.Errorf("read %s: %w", f.Path, err)
					}
					inputs = append(inputs, api.TraitValueInput{
						TraitTypeID: typeID,
						Value:       f.Value,
						File:        api.FilePart{Name: filepath.Base(f.Path), Data: data},
					})
				}
				created, err := s.api.CreateTraitValues(ctx, req.CollectionID, inputs)
				if err != nil {
					return err
				}
				for j, tv := range created {
					value := tv.Value
					if value == "" && j < len(batch) {
						value = batch[j].Value
					}
					valueIDs[valueKey(g.name, value)] = tv.ID
				}
				result.TraitValues = append(result.TraitValues, created...)
				return nil
			})
			if err != nil {
				return err
			}
			progress.advance(ctx, models.UploadPhaseTraitValues, idx, len(batch))
			valueBatch++
		}
	}

	records := make([]models.RecursiveInscription, 0, len(plan.records))
	for _, rec := range plan.records {
		out := models.RecursiveInscription{Name: rec.name}
		for _, ref := range rec.refs {
			typeID := typeIDs[strings.ToLower(ref.group)]
			valueID := valueIDs[valueKey(ref.group, ref.value)]
			if typeID == "" || valueID == "" {
				// nothing is submitted while a record would reference an unknown id
				return &BatchError{
					Phase:      models.UploadPhaseRecursive,
					BatchIndex: len(records) / size,
					Err:        fmt.Errorf("%s: no trait value id returned for %s=%q", rec.name, ref.group, ref.value),
				}
			}
			out.Traits = append(out.Traits, models.RecursiveTraitValue{TraitTypeID: typeID, TraitValueID: valueID})
		}
		records = append(records, out)
	}
	for i, batch := range chunk(records, size) {
		err := s.submitBatch(ctx, models.UploadPhaseRecursive, i, func() error {
			return s.api.CreateRecursiveInscriptions(ctx, req.CollectionID, batch)
		})
		if err != nil {
			return err
		}
		result.Recursive += len(batch)
		progress.advance(ctx, models.UploadPhaseRecursive, i, len(batch))
	}

	for i, batch := range chunk(req.OneOfOnes, size) {
		err := s.submitBatch(ctx, models.UploadPhaseOneOfOne, i, func() error {
			inputs := make([]api.OneOfOneInput, 0, len(batch))
			for _, path := range batch {
				data, err := s.readFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				name := filepath.Base(path)
				inputs = append(inputs, api.OneOfOneInput{
					Name: strings.TrimSuffix(name, filepath.Ext(name)),
					File: api.FilePart{Name: name, Data: data},
				})
			}
			created, err := s.api.CreateOneOfOneEditions(ctx, req.CollectionID, inputs)
			if err != nil {
				return err
			}
			result.OneOfOnes = append(result.OneOfOnes, created...)
			return nil
		})
		if err != nil {
			return err
		}
		progress.advance(ctx, models.UploadPhaseOneOfOne, i, len(batch))
	}
	return nil
}

func (s *UploadService) submitBatch(ctx context.Context, phase string, index int, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &BatchError{Phase: phase, BatchIndex: index, Err: err}
	}
	err := fn()
	metrics.ObserveUploadBatch(phase, err)
	if err != nil {
		return &BatchError{Phase: phase, BatchIndex: index, Err: err}
	}
	return nil
}

func (s *UploadService) startRun(ctx context.Context, req UploadRequest, total int, log *zap.Logger) {
	if s.runs == nil {
		return
	}
	run := &models.UploadRun{ID: req.RunID, CollectionID: req.CollectionID, Total: total}
	if err := s.runs.Create(ctx, run); err != nil {
		log.Warn("upload run not recorded", zap.Error(err))
	}
}

func (s *UploadService) finishRun(runID, status, errMsg string, log *zap.Logger) {
	if s.runs == nil {
		return
	}
	// the upload context may already be cancelled
	if err := s.runs.Finish(context.Background(), runID, status, errMsg); err != nil {
		log.Warn("upload run status not recorded", zap.Error(err))
	}
}

type uploadProgress struct {
	svc          *UploadService
	req          UploadRequest
	log          *zap.Logger
	collectionID string
	state        models.UploadProgress
}

// advance only ever adds, so Current never decreases.
func (p *uploadProgress) advance(ctx context.Context, phase string, batch, n int) {
	p.state.Phase = phase
	p.state.Batch = batch
	p.state.Current += n
	if p.state.Current > p.state.Total {
		p.state.Current = p.state.Total
	}
	snapshot := p.state

	if p.req.OnProgress != nil {
		p.req.OnProgress(snapshot)
	}
	if p.svc.runs != nil {
		if err := p.svc.runs.UpdateProgress(ctx, snapshot.RunID, snapshot.Current, snapshot.Total); err != nil {
			p.log.Debug("upload progress not recorded", zap.Error(err))
		}
	}
	if p.svc.publisher != nil {
		err := p.svc.publisher.Publish(ctx, events.StreamClient, events.Event{
			Type: events.EventUploadProgress,
			Payload: map[string]any{
				"runId":        snapshot.RunID,
				"collectionId": p.collectionID,
				"phase":        snapshot.Phase,
				"batch":        snapshot.Batch,
				"current":      snapshot.Current,
				"total":        snapshot.Total,
			},
		})
		if err != nil {
			p.log.Debug("upload progress event not published", zap.Error(err))
		}
	}
}

type traitGroup struct {
	name   string
	zIndex int
	files  []TraitFile
}

type traitRef struct {
	group string
	value string
}

type recordPlan struct {
	name string
	refs []traitRef
}

type uploadPlan struct {
	groups  []traitGroup
	records []recordPlan
	total   int
}

// ValidateUpload checks that every metadata attribute resolves to a trait
// file without submitting anything.
func ValidateUpload(req UploadRequest) error {
	_, err := buildUploadPlan(req)
	return err
}

// buildUploadPlan groups the files, assigns z-indexes and resolves every
// metadata attribute before anything is submitted.
func buildUploadPlan(req UploadRequest) (*uploadPlan, error) {
	byName := make(map[string]*traitGroup)
	var names []string
	for _, f := range req.TraitFiles {
		if f.TraitType == "" || f.Value == "" {
			return nil, fmt.Errorf("trait file %s has no trait type or value", f.Path)
		}
		g, ok := byName[f.TraitType]
		if !ok {
			g = &traitGroup{name: f.TraitType}
			byName[f.TraitType] = g
			names = append(names, f.TraitType)
		}
		g.files = append(g.files, f)
	}
	sort.Strings(names)

	zIndexes := ResolveZIndexes(names, TraitOrder(req.Metadata))
	plan := &uploadPlan{}
	for _, name := range names {
		g := byName[name]
		g.zIndex = zIndexes[name]
		plan.groups = append(plan.groups, *g)
	}

	for i, entry := range req.Metadata {
		rec := recordPlan{name: entry.Name}
		if rec.name == "" {
			rec.name = fmt.Sprintf("#%d", i+1)
		}
		for _, attr := range entry.Attributes {
			value := strings.TrimSpace(string(attr.Value))
			if value == "" {
				continue
			}
			group, ok := matchTraitName(attr.TraitType, names)
			if !ok {
				return nil, fmt.Errorf("metadata %s: no trait folder for trait type %q", rec.name, attr.TraitType)
			}
			file, ok := findValue(byName[group].files, value)
			if !ok {
				return nil, fmt.Errorf("metadata %s: no file for %s value %q", rec.name, group, value)
			}
			rec.refs = append(rec.refs, traitRef{group: group, value: file.Value})
		}
		plan.records = append(plan.records, rec)
	}

	plan.total = len(plan.groups) + len(req.TraitFiles) + len(plan.records) + len(req.OneOfOnes)
	return plan, nil
}

// ResolveZIndexes assigns a z-index to every trait folder: the index of the
// metadata trait type with the same normalized name, else of the first one
// contained in or containing it, else the next index after the metadata order.
func ResolveZIndexes(folders, order []string) map[string]int {
	normOrder := make([]string, len(order))
	for i, o := range order {
		normOrder[i] = normalizeTraitName(o)
	}

	out := make(map[string]int, len(folders))
	taken := make(map[int]bool, len(folders))
	assign := func(folder string, match func(nf, no string) bool) {
		if _, done := out[folder]; done {
			return
		}
		nf := normalizeTraitName(folder)
		for i, no := range normOrder {
			if taken[i] || no == "" || nf == "" {
				continue
			}
			if match(nf, no) {
				out[folder] = i
				taken[i] = true
				return
			}
		}
	}

	for _, f := range folders {
		assign(f, func(nf, no string) bool { return nf == no })
	}
	for _, f := range folders {
		assign(f, func(nf, no string) bool { return strings.Contains(nf, no) || strings.Contains(no, nf) })
	}

	next := len(order)
	for _, f := range folders {
		if _, done := out[f]; done {
			continue
		}
		for taken[next] {
			next++
		}
		out[f] = next
		taken[next] = true
	}
	return out
}

// TraitOrder lists trait types in order of first appearance in the metadata.
func TraitOrder(entries []MetadataEntry) []string {
	var order []string
	seen := make(map[string]bool)
	for _, e := range entries {
		for _, a := range e.Attributes {
			key := normalizeTraitName(a.TraitType)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			order = append(order, a.TraitType)
		}
	}
	return order
}

func normalizeTraitName(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
}

func matchTraitName(traitType string, folders []string) (string, bool) {
	nt := normalizeTraitName(traitType)
	if nt == "" {
		return "", false
	}
	for _, f := range folders {
		if normalizeTraitName(f) == nt {
			return f, true
		}
	}
	for _, f := range folders {
		nf := normalizeTraitName(f)
		if nf != "" && (strings.Contains(nf, nt) || strings.Contains(nt, nf)) {
			return f, true
		}
	}
	return "", false
}

func findValue(files []TraitFile, value string) (TraitFile, bool) {
	for _, f := range files {
		if strings.EqualFold(strings.TrimSpace(f.Value), value) {
			return f, true
		}
	}
	return TraitFile{}, false
}

func valueKey(group, value string) string {
	return strings.ToLower(group) + "\x00" + strings.ToLower(strings.TrimSpace(value))
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".avif": true,
}

// CollectTraitFiles walks root and returns one TraitFile per image. The
// folder holding an image names its trait type and the file name, without
// extension, its value.
func CollectTraitFiles(root string) ([]TraitFile, error) {
	var files []TraitFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !imageExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		dir := filepath.Dir(path)
		if filepath.Clean(dir) == filepath.Clean(root) {
			return fmt.Errorf("%s is not inside a trait folder", path)
		}
		name := d.Name()
		files = append(files, TraitFile{
			TraitType: filepath.Base(dir),
			Value:     strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect trait files: %w", err)
	}
	return files, nil
}

// CollectImages returns the image files directly under dir, sorted by name.
func CollectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// ParseMetadata decodes a flat JSON array of {name, attributes[]} entries.
func ParseMetadata(data []byte) ([]MetadataEntry, error) {
	var entries []MetadataEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return entries, nil
}

// BuildUploadRequest loads the local files named by a wizard trait step.
func BuildUploadRequest(in models.TraitUploadInput, collectionID, orderID string) (UploadRequest, error) {
	req := UploadRequest{CollectionID: collectionID, OrderID: orderID}

	if in.TraitsDir != "" {
		files, err := CollectTraitFiles(in.TraitsDir)
		if err != nil {
			return UploadRequest{}, err
		}
		req.TraitFiles = files
	}
	if in.MetadataPath != "" {
		data, err := os.ReadFile(in.MetadataPath)
		if err != nil {
			return UploadRequest{}, fmt.Errorf("read metadata: %w", err)
		}
		if req.Metadata, err = ParseMetadata(data); err != nil {
			return UploadRequest{}, err
		}
	}
	if in.OneOfOneDir != "" {
		files, err := CollectImages(in.OneOfOneDir)
		if err != nil {
			return UploadRequest{}, fmt.Errorf("collect one-of-one editions: %w", err)
		}
		req.OneOfOnes = files
	}
	return req, nil
}
