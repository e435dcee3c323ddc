package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// recordStream is the shared RecordStream implementation: a producer
// goroutine pushes pages of decoded records onto ch, Next receives one
// at a time, and the first error observed (by either side) ends
// iteration.
type recordStream struct {
	ch     chan types.Record
	errCh  chan error
	cur    types.Record
	err    error
	cancel context.CancelFunc
}

func newRecordStream(parent context.Context, produce func(ctx context.Context, emit func(types.Record)) error) *recordStream {
	ctx, cancel := context.WithCancel(parent)
	s := &recordStream{
		ch:     make(chan types.Record, 64),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		defer close(s.ch)
		emit := func(rec types.Record) {
			select {
			case s.ch <- rec:
			case <-ctx.Done():
			}
		}
		s.errCh <- produce(ctx, emit)
	}()
	return s
}

func (s *recordStream) Next(ctx context.Context) bool {
	select {
	case rec, ok := <-s.ch:
		if !ok {
			select {
			case err := <-s.errCh:
				if err != nil {
					s.err = err
				}
			default:
			}
			return false
		}
		s.cur = rec
		return true
	case <-ctx.Done():
		s.err = ctx.Err()
		s.cancel()
		return false
	}
}

func (s *recordStream) Record() types.Record { return s.cur }
func (s *recordStream) Err() error           { return s.err }

type queryPage struct {
	TotalSize      int            `json:"totalSize"`
	Done           bool           `json:"done"`
	NextRecordsURL string         `json:"nextRecordsUrl"`
	Records        []types.Record `json:"records"`
}

// Query implements RemoteClient.Query: a streaming pager that follows
// nextRecordsUrl until done=true. includeDeleted selects queryAll over
// query, the path the incremental sync and scrub backstop use to see
// tombstoned rows.
func (c *Client) Query(ctx context.Context, soql string, includeDeleted bool) (types.RecordStream, error) {
	resource := "query/"
	if includeDeleted {
		resource = "queryAll/"
	}
	first := c.restURL(resource) + "?q=" + url.QueryEscape(encodeSOQL(soql))

	return newRecordStream(ctx, func(ctx context.Context, emit func(types.Record)) error {
		next := first
		for next != "" {
			req, err := c.newRequest(ctx, http.MethodGet, next, nil)
			if err != nil {
				return err
			}
			resp, err := c.do(req)
			if err != nil {
				return errors.Wrap(err, "query request failed")
			}

			if resp.StatusCode == 431 {
				resp.Body.Close()
				return errors.Wrapf(types.ErrQueryTooLarge, "query exceeded remote result-size limit")
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return errors.Wrapf(types.ErrRemoteTransient, "query: status %d", resp.StatusCode)
			}

			var page queryPage
			decErr := json.NewDecoder(resp.Body).Decode(&page)
			resp.Body.Close()
			if decErr != nil {
				return errors.Wrap(decErr, "decode query page")
			}

			for _, rec := range page.Records {
				emit(rec)
			}

			if page.Done || page.NextRecordsURL == "" {
				break
			}
			next = c.instanceURL + page.NextRecordsURL
		}
		return nil
	}), nil
}
