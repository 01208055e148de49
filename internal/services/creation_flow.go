package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/session"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrLastStep = errors.New("wizard is already at the last step")

// CreationWizard holds the create-collection wizard. Continue only checks
// that required fields are filled in; business rules are the API's job.
type CreationWizard struct {
	mu   sync.Mutex
	flow models.CreationFlow
}

func NewCreationWizard() *CreationWizard {
	return &CreationWizard{}
}

func (w *CreationWizard) Flow() models.CreationFlow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flow
}

func (w *CreationWizard) SetCollection(d models.CollectionDetails) {
	w.mu.Lock()
	w.flow.Collection = d
	w.mu.Unlock()
}

func (w *CreationWizard) SetTraits(t models.TraitUploadInput) {
	w.mu.Lock()
	w.flow.Traits = t
	w.mu.Unlock()
}

func (w *CreationWizard) SetInscription(p models.InscriptionPayment) {
	w.mu.Lock()
	w.flow.Inscription = p
	w.mu.Unlock()
}

// Continue moves to the next step once the current one is complete.
func (w *CreationWizard) Continue() (models.CreationStep, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.flow.CurrentStep >= models.StepLaunch {
		return w.flow.CurrentStep, ErrLastStep
	}
	if missing := missingFields(w.flow, w.flow.CurrentStep); len(missing) > 0 {
		return w.flow.CurrentStep, &MissingFieldsError{Step: w.flow.CurrentStep.String(), Fields: missing}
	}
	w.flow.CurrentStep++
	return w.flow.CurrentStep, nil
}

func (w *CreationWizard) Back() models.CreationStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flow.CurrentStep > models.StepCollectionDetails {
		w.flow.CurrentStep--
	}
	return w.flow.CurrentStep
}

// Reset drops everything entered so far.
func (w *CreationWizard) Reset() {
	w.mu.Lock()
	w.flow = models.CreationFlow{}
	w.mu.Unlock()
}

func missingFields(flow models.CreationFlow, step models.CreationStep) []string {
	var missing []string
	switch step {
	case models.StepCollectionDetails:
		c := flow.Collection
		if strings.TrimSpace(c.Name) == "" {
			missing = append(missing, "name")
		}
		if strings.TrimSpace(c.Symbol) == "" {
			missing = append(missing, "symbol")
		}
		if c.Supply == 0 {
			missing = append(missing, "supply")
		}
	case models.StepTraitUpload:
		if flow.Traits.TraitsDir == "" && flow.Traits.OneOfOneDir == "" {
			missing = append(missing, "traits_dir or one_of_one_dir")
		}
	case models.StepInscriptionPayment:
		if flow.Inscription.FeeRate == 0 {
			missing = append(missing, "fee_rate")
		}
	}
	return missing
}

// ValidateFlow checks every step before the launch.
func ValidateFlow(flow models.CreationFlow) error {
	for step := models.StepCollectionDetails; step < models.StepLaunch; step++ {
		if missing := missingFields(flow, step); len(missing) > 0 {
			return &MissingFieldsError{Step: step.String(), Fields: missing}
		}
	}
	return nil
}

type collectionManifest struct {
	Collection  models.CollectionDetails  `yaml:"collection"`
	Traits      models.TraitUploadInput   `yaml:"traits"`
	Inscription models.InscriptionPayment `yaml:"inscription"`
}

// LoadCollectionManifest reads a YAML manifest into a wizard flow positioned
// at the launch step. Relative paths are resolved against the manifest's directory.
func LoadCollectionManifest(path string) (models.CreationFlow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CreationFlow{}, fmt.Errorf("read manifest: %w", err)
	}
	var m collectionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return models.CreationFlow{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	m.Traits.TraitsDir = resolve(m.Traits.TraitsDir)
	m.Traits.MetadataPath = resolve(m.Traits.MetadataPath)
	m.Traits.OneOfOneDir = resolve(m.Traits.OneOfOneDir)

	flow := models.CreationFlow{
		CurrentStep: models.StepLaunch,
		Collection:  m.Collection,
		Traits:      m.Traits,
		Inscription: m.Inscription,
	}
	if err := ValidateFlow(flow); err != nil {
		return models.CreationFlow{}, err
	}
	return flow, nil
}

type CollectionAPI interface {
	CreateCollection(ctx context.Context, req api.CreateCollectionRequest) (*models.Collection, error)
}

type LaunchResult struct {
	Collection *models.Collection
	Order      *models.Order
	TxID       string
	// ManualPayment is set when the order was funded outside the wallet.
	ManualPayment bool
	Upload        *UploadResult
}

// CreationService launches a finished wizard flow.
type CreationService struct {
	api     CollectionAPI
	orders  *OrderService
	uploads *UploadService
	store   *session.Store
	log     *zap.Logger
}

func NewCreationService(collectionAPI CollectionAPI, orders *OrderService, uploads *UploadService, store *session.Store, log *zap.Logger) *CreationService {
	return &CreationService{
		api:     collectionAPI,
		orders:  orders,
		uploads: uploads,
		store:   store,
		log:     log,
	}
}

// Launch creates the collection and its order, pays, waits for the payment
// to be seen, then uploads everything and triggers the mint. On error the
// result holds whatever was created before the failing step.
func (s *CreationService) Launch(ctx context.Context, flow models.CreationFlow, onProgress func(models.UploadProgress)) (*LaunchResult, error) {
	if err := ValidateFlow(flow); err != nil {
		return nil, err
	}
	snap := s.store.Snapshot()
	if !snap.Authenticated || snap.CurrentLayer == nil || snap.CurrentUserLayer == nil {
		return nil, ErrNotAuthenticated
	}
	layer, userLayer := *snap.CurrentLayer, *snap.CurrentUserLayer

	// local files are checked before anything is created on the server
	uploadReq, err := BuildUploadRequest(flow.Traits, "", "")
	if err != nil {
		return nil, err
	}
	if err := ValidateUpload(uploadReq); err != nil {
		return nil, err
	}

	collectionType := flow.Collection.Type
	if collectionType == "" {
		collectionType = models.CollectionTypeRecursive
		if len(uploadReq.TraitFiles) == 0 {
			collectionType = models.CollectionTypeInscription
		}
	}

	log := s.log.With(zap.String("layer", layer.Name), zap.String("collection", flow.Collection.Name))
	result := &LaunchResult{}

	collection, err := s.api.CreateCollection(ctx, api.CreateCollectionRequest{
		Name:        flow.Collection.Name,
		Symbol:      flow.Collection.Symbol,
		Description: flow.Collection.Description,
		Supply:      flow.Collection.Supply,
		Type:        collectionType,
		LayerID:     layer.ID,
		UserLayerID: userLayer.ID,
	})
	if err != nil {
		return result, fmt.Errorf("create collection: %w", err)
	}
	result.Collection = collection
	log.Info("collection created", zap.String("collection_id", collection.ID))

	order, err := s.orders.Create(ctx, collection.ID, userLayer.ID, flow.Inscription.FeeRate)
	if err != nil {
		return result, err
	}
	result.Order = order

	if flow.Inscription.PayFromWallet {
		txid, err := s.orders.Pay(ctx, layer, order)
		switch {
		case errors.Is(err, ErrManualPayment):
			result.ManualPayment = true
		case err != nil:
			return result, err
		default:
			result.TxID = txid
		}
	} else {
		result.ManualPayment = true
	}
	if result.ManualPayment {
		log.Info("waiting for manual payment",
			zap.String("funding_address", order.FundingAddress),
			zap.Int64("funding_amount", order.FundingAmount))
	}

	if err := s.orders.WaitPaid(ctx, order.ID); err != nil {
		return result, fmt.Errorf("wait for payment: %w", err)
	}

	uploadReq.CollectionID = collection.ID
	uploadReq.OrderID = order.ID
	uploadReq.OnProgress = onProgress
	upload, err := s.uploads.Upload(ctx, uploadReq)
	result.Upload = upload
	if err != nil {
		return result, err
	}
	return result, nil
}
