// Package remote implements RemoteClient: a streaming REST query
// pager, the async bulk-query job controller, and the describe
// endpoints. Streaming results are modeled as channels rather than
// buffered slices, so a caller never waits on more than the current
// page or result set.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

const apiVersion = "44.0"

// Client is the concurrency-safe RemoteClient implementation: one
// instance is shared by every sync worker, and calls is updated
// atomically so each worker can read its own delta since task start by
// snapshotting before and after (see internal/sync).
type Client struct {
	http        *http.Client
	instanceURL string
	accessToken string
	calls       int64

	pkChunking     bool
	pkChunkingSize int

	log *log.Entry
}

// New constructs a Client bound to an already-authenticated session.
// Token acquisition (OAuth) is explicitly out of scope; callers obtain
// accessToken/instanceURL however their deployment requires and pass
// them in.
func New(httpClient *http.Client, instanceURL, accessToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		http:        httpClient,
		instanceURL: strings.TrimRight(instanceURL, "/"),
		accessToken: accessToken,
		log:         log.WithField("component", "remote"),
	}
}

// APICalls returns the cumulative round-trip counter.
func (c *Client) APICalls() int64 {
	return atomic.LoadInt64(&c.calls)
}

func (c *Client) countCall() {
	atomic.AddInt64(&c.calls, 1)
}

// EnablePKChunking toggles the Sforce-Enable-PKChunking header used by
// BulkQuery, per RemoteClient.bulk_query's PKChunking rule (enabled
// when record_count(sobject) > 200_000).
func (c *Client) EnablePKChunking(enabled bool, chunkSize int) {
	c.pkChunking = enabled
	c.pkChunkingSize = chunkSize
}

func (c *Client) newRequest(ctx context.Context, method, fullURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+c.accessToken)
	req.Header.Set("X-SFDC-Session", c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	c.countCall()
	return resp, err
}

func (c *Client) restURL(resource string) string {
	return fmt.Sprintf("%s/services/data/v%s/%s", c.instanceURL, apiVersion, resource)
}

func (c *Client) asyncURL(resource string) string {
	return fmt.Sprintf("%s/services/async/%s/%s", c.instanceURL, apiVersion, resource)
}

// get issues an authenticated GET against a REST endpoint and decodes
// the JSON body into out.
func (c *Client) get(ctx context.Context, fullURL string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return errors.Wrap(err, "remote GET failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(types.ErrRemoteTransient, "GET %s: status %d", fullURL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RecordCount implements RemoteClient.RecordCount. The optional where
// clause is only appended when filter itself is non-empty.
func (c *Client) RecordCount(ctx context.Context, sobject string, filter string) (int, error) {
	soql := "select count() from " + sobject
	if filter != "" {
		soql += " where " + filter
	}
	u := c.restURL("query/") + "?" + url.Values{"q": {soql}}.Encode()

	var payload struct {
		TotalSize int `json:"totalSize"`
	}
	if err := c.get(ctx, u, &payload); err != nil {
		return 0, errors.Wrapf(err, "record count for %s", sobject)
	}
	return payload.TotalSize, nil
}

// GetSObjectList implements RemoteClient.GetSObjectList.
func (c *Client) GetSObjectList(ctx context.Context) ([]types.SObjectSummary, error) {
	var payload struct {
		SObjects []struct {
			Name          string `json:"name"`
			CustomSetting bool   `json:"customSetting"`
			Replicateable bool   `json:"replicateable"`
			Updateable    bool   `json:"updateable"`
		} `json:"sobjects"`
	}
	if err := c.get(ctx, c.restURL("sobjects/"), &payload); err != nil {
		return nil, errors.Wrap(err, "list sobjects")
	}
	out := make([]types.SObjectSummary, 0, len(payload.SObjects))
	for _, s := range payload.SObjects {
		out = append(out, types.SObjectSummary{
			Name:          s.Name,
			CustomSetting: s.CustomSetting,
			Replicateable: s.Replicateable,
			Updateable:    s.Updateable,
		})
	}
	return out, nil
}

// GetSObjectDefinition implements RemoteClient.GetSObjectDefinition.
func (c *Client) GetSObjectDefinition(ctx context.Context, name string) (types.SObjectSummary, error) {
	var payload struct {
		Name          string `json:"name"`
		CustomSetting bool   `json:"customSetting"`
		Replicateable bool   `json:"replicateable"`
		Updateable    bool   `json:"updateable"`
	}
	if err := c.get(ctx, c.restURL(fmt.Sprintf("sobjects/%s/describe", name)), &payload); err != nil {
		return types.SObjectSummary{}, errors.Wrapf(err, "describe %s", name)
	}
	return types.SObjectSummary{
		Name:          payload.Name,
		CustomSetting: payload.CustomSetting,
		Replicateable: payload.Replicateable,
		Updateable:    payload.Updateable,
	}, nil
}

type fieldPayload struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Length      int      `json:"length"`
	Precision   int      `json:"precision"`
	Scale       int      `json:"scale"`
	ExternalID  bool     `json:"externalId"`
	IDLookup    bool     `json:"idLookup"`
	ReferenceTo []string `json:"referenceTo"`
}

// GetFieldList implements RemoteClient.GetFieldList, returning fields
// sorted by name.
func (c *Client) GetFieldList(ctx context.Context, sobject string) (types.SObjectDescriptor, error) {
	var payload struct {
		Fields []fieldPayload `json:"fields"`
	}
	if err := c.get(ctx, c.restURL(fmt.Sprintf("sobjects/%s/describe/", sobject)), &payload); err != nil {
		return types.SObjectDescriptor{}, errors.Wrapf(err, "field list for %s", sobject)
	}

	sort.Slice(payload.Fields, func(i, j int) bool {
		return payload.Fields[i].Name < payload.Fields[j].Name
	})

	fields := make([]types.FieldDescriptor, 0, len(payload.Fields))
	for _, f := range payload.Fields {
		fields = append(fields, types.FieldDescriptor{
			Name:         f.Name,
			Type:         types.FieldType(f.Type),
			Length:       f.Length,
			Precision:    f.Precision,
			Scale:        f.Scale,
			IsExternalID: f.ExternalID,
			IsIDLookup:   f.IDLookup,
			References:   f.ReferenceTo,
		})
	}
	return types.NewSObjectDescriptor(sobject, fields), nil
}

// encodeSOQL strips newlines/carriage returns before transmission, to
// avoid upsetting the remote's query parser. The caller then passes the
// result through url.QueryEscape, which percent-encodes '+' (as %2B)
// along with everything else, so '+' is not pre-encoded here.
func encodeSOQL(soql string) string {
	soql = strings.ReplaceAll(soql, "\n", "")
	soql = strings.ReplaceAll(soql, "\r", "")
	return soql
}
