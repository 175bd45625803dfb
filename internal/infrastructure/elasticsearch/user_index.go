package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/authcore/internal/domain/entity"
)

const requestTimeout = 3 * time.Second

// publicFields are the only document fields a search hands back.
var publicFields = []string{"id", "name", "username", "profile_picture", "provider", "created_at", "updated_at"}

// UserIndex keeps public user fields searchable. It never stores credentials or email addresses.
type UserIndex struct {
	client *es.Client
	index  string
}

func NewUserIndex(client *es.Client, index string) *UserIndex {
	if index == "" {
		index = "users"
	}
	return &UserIndex{client: client, index: index}
}

func (x *UserIndex) Index(ctx context.Context, u *entity.User) error {
	doc := map[string]any{
		"id":              u.ID,
		"name":            u.Name,
		"username":        u.Username,
		"profile_picture": u.ProfilePicture,
		"provider":        u.Provider,
		"created_at":      u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: x.index, DocumentID: u.ID, Body: bytes.NewReader(b), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, x.client)
	if err != nil {
		return fmt.Errorf("es index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index: %s", res.Status())
	}
	return nil
}

// Search runs a multi_match over username and name.
func (x *UserIndex) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^3", "name"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.client.Search(
		x.client.Search.WithContext(c),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(bytes.NewReader(b)),
		x.client.Search.WithSourceIncludes(publicFields...),
	)
	if err != nil {
		return nil, fmt.Errorf("es search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		// documents written before email was dropped may still carry it
		hit := make(map[string]any, len(publicFields))
		for _, f := range publicFields {
			if v, ok := h.Source[f]; ok {
				hit[f] = v
			}
		}
		out = append(out, hit)
	}
	return out, nil
}
