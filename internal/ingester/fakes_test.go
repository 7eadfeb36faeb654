package ingester

import (
	"sync"
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

type fakeQueue struct {
	mu           sync.Mutex
	available    int
	availableErr error
	queued       [][]byte
	messages     []*model.QueueMessage
	dequeueErr   error
	dequeueMax   int
	resolved     []string
	resolveErr   error
}

func (q *fakeQueue) GetAvailableReceivedBackupResults(_ *bmcontext.Context) (int, error) {
	return q.available, q.availableErr
}

func (q *fakeQueue) QueueReceivedBackupResult(_ *bmcontext.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, payload)
	return nil
}

func (q *fakeQueue) DequeueReceivedBackupResults(_ *bmcontext.Context, max int) ([]*model.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dequeueMax = max
	if q.dequeueErr != nil {
		return nil, q.dequeueErr
	}
	n := max
	if n > len(q.messages) {
		n = len(q.messages)
	}
	batch := q.messages[:n]
	q.messages = q.messages[n:]
	return batch, nil
}

func (q *fakeQueue) ResolveReceivedBackupResult(_ *bmcontext.Context, msg *model.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resolveErr != nil {
		return q.resolveErr
	}
	q.resolved = append(q.resolved, msg.Id)
	return nil
}

func (q *fakeQueue) ExtractPayload(_ string, msg *model.QueueMessage) ([]byte, error) {
	return msg.Body, nil
}

type fakeStore struct {
	mu       sync.Mutex
	content  map[string][]byte
	put      map[string]model.DeliveryType
	archived map[string]string
	getCalls int
	getErr   error
	orphans  map[model.DeliveryType][]*model.OrphanedBackupResultContent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		content:  map[string][]byte{},
		put:      map[string]model.DeliveryType{},
		archived: map[string]string{},
		orphans:  map[model.DeliveryType][]*model.OrphanedBackupResultContent{},
	}
}

func (s *fakeStore) PutBackupResultContent(_ *bmcontext.Context, deliveryType model.DeliveryType, backupId string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[backupId] = content
	s.put[backupId] = deliveryType
	return nil
}

func (s *fakeStore) GetBackupResultContent(_ *bmcontext.Context, backupId string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	content, ok := s.content[backupId]
	if !ok {
		return nil, &bmerrors.ErrNotFound{Type: "BackupResultContent", Value: backupId}
	}
	return content, nil
}

func (s *fakeStore) ArchiveBackupResultContent(_ *bmcontext.Context, backupId string, ingestId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[backupId] = ingestId
	return nil
}

func (s *fakeStore) FindOrphanedBackupResultContent(_ *bmcontext.Context, deliveryType model.DeliveryType, _ time.Duration) ([]*model.OrphanedBackupResultContent, error) {
	return s.orphans[deliveryType], nil
}

type addedResult struct {
	meta    *model.BackupResultMeta
	metrics *model.BackupResultMetrics
}

type fakeClients struct {
	mu      sync.Mutex
	keys    map[string]string
	getErr  error
	added   []addedResult
	addErr  error
	lookups [][]model.ClientAttribute
}

func newFakeClients(keys map[string]string) *fakeClients {
	return &fakeClients{keys: keys}
}

func (c *fakeClients) GetClient(_ *bmcontext.Context, clientId string, attributes []model.ClientAttribute) (*model.ClientRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups = append(c.lookups, attributes)
	if c.getErr != nil {
		return nil, c.getErr
	}
	key, ok := c.keys[clientId]
	if !ok {
		return nil, nil
	}
	return &model.ClientRecord{ClientId: clientId, ClientKey: key}, nil
}

func (c *fakeClients) AddClient(_ *bmcontext.Context, clientId string, clientKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[clientId] = clientKey
	return nil
}

func (c *fakeClients) AddBackupResult(_ *bmcontext.Context, meta *model.BackupResultMeta, metrics *model.BackupResultMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addErr != nil {
		return c.addErr
	}
	c.added = append(c.added, addedResult{meta: meta, metrics: metrics})
	return nil
}

func (c *fakeClients) IncrementBackupResultMetrics(_ *bmcontext.Context, _ string, _ []*model.BackupResultMetrics) error {
	return nil
}

type fakeInvoker struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     func(call int) error
}

func (f *fakeInvoker) InvokeQueueWorker(_ *bmcontext.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.fail != nil {
		return f.fail(len(f.payloads))
	}
	return nil
}
