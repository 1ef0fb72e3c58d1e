package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	"npcs-desk/constants"
	"npcs-desk/utils"

	"go.uber.org/zap"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrUnknownField = errors.New("unknown job field")
	ErrInvalidQC    = errors.New("invalid QC value")
)

// Document is the whole persisted file.
type Document struct {
	APIKey string `json:"api_key"`
	Jobs   []Job  `json:"jobs"`
}

// JobStore keeps the API key and the job list in one JSON file. Every
// operation reads the file, changes it in memory and writes it back, so
// it is only safe for a single process.
type JobStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewJobStore(path string, logger *zap.Logger) *JobStore {
	return &JobStore{
		path:   path,
		logger: logger,
	}
}

func (store *JobStore) Path() string {
	return store.path
}

func (store *JobStore) load() (*Document, error) {
	b, err := ioutil.ReadFile(store.path)
	if os.IsNotExist(err) {
		return &Document{Jobs: []Job{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", store.path, err)
	}
	if doc.Jobs == nil {
		doc.Jobs = []Job{}
	}
	for i := range doc.Jobs {
		// records written before QC existed
		if doc.Jobs[i].QC == "" {
			doc.Jobs[i].QC = constants.QCNotApplicable
		}
	}
	return &doc, nil
}

func (store *JobStore) save(doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(store.path, b)
}

func (store *JobStore) GetAPIKey() (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return "", err
	}
	return doc.APIKey, nil
}

func (store *JobStore) SetAPIKey(apiKey string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return err
	}
	doc.APIKey = apiKey
	return store.save(doc)
}

// AddJob appends job. A job with the same order id is left untouched.
func (store *JobStore) AddJob(job Job) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return err
	}
	for i := range doc.Jobs {
		if doc.Jobs[i].OrderID == job.OrderID {
			store.logger.Warn("job already exists", zap.String("order_id", job.OrderID))
			return nil
		}
	}
	if job.QC == "" {
		job.QC = constants.QCNotApplicable
	}
	doc.Jobs = append(doc.Jobs, job)
	return store.save(doc)
}

func (store *JobStore) ListJobs() ([]Job, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return nil, err
	}
	return doc.Jobs, nil
}

func (store *JobStore) GetJob(orderID string) (*Job, error) {
	jobs, err := store.ListJobs()
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].OrderID == orderID {
			return &jobs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, orderID)
}

// UpdateField sets one field of a job. order_id is the key and cannot
// be changed. Nothing is written on error.
func (store *JobStore) UpdateField(orderID, field, value string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return err
	}

	for i := range doc.Jobs {
		job := &doc.Jobs[i]
		if job.OrderID != orderID {
			continue
		}
		switch field {
		case "dataset_id":
			job.DatasetID = value
		case "last_status":
			job.LastStatus = value
		case "product":
			job.Product = value
		case "timestamp":
			job.Timestamp = value
		case "qc":
			if !IsValidQC(value) {
				return fmt.Errorf("%w: %q", ErrInvalidQC, value)
			}
			job.QC = value
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		return store.save(doc)
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, orderID)
}

// RemoveJob deletes a job; removing an unknown id does nothing.
func (store *JobStore) RemoveJob(orderID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return err
	}
	for i := range doc.Jobs {
		if doc.Jobs[i].OrderID == orderID {
			doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)
			return store.save(doc)
		}
	}
	return nil
}
