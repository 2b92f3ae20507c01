package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"saferental-service/internal/client"
	"saferental-service/internal/model"
	"saferental-service/internal/util"
)

// ErrUnavailable is returned when no search backend is configured.
var ErrUnavailable = errors.New("search backend not configured")

// document is the flattened agreement shape kept in the index; no id proof
// references or contact details beyond emails are indexed.
type document struct {
	AgreementID      string `json:"agreement_id"`
	AgreementNumber  string `json:"agreement_number"`
	TenantFullName   string `json:"tenant_full_name"`
	TenantEmail      string `json:"tenant_email"`
	LandlordFullName string `json:"landlord_full_name"`
	LandlordEmail    string `json:"landlord_email"`
	PropertyAddress  string `json:"property_address"`
	FullyVerified    bool   `json:"fully_verified"`
	CreatedAt        string `json:"created_at"`
}

// Result is one search hit, a public-safe summary.
type Result struct {
	AgreementID     string `json:"agreementId"`
	AgreementNumber string `json:"agreementNumber"`
	TenantName      string `json:"tenantName"`
	LandlordName    string `json:"landlordName"`
	PropertyAddress string `json:"propertyAddress"`
	FullyVerified   bool   `json:"fullyVerified"`
}

// Indexer mirrors agreements into Elasticsearch for the dashboard search. A
// nil Indexer drops index writes and reports ErrUnavailable on queries.
type Indexer struct {
	es    *client.ESClient
	index string
}

func NewIndexer(es *client.ESClient, index string) *Indexer {
	if es == nil {
		return nil
	}
	return &Indexer{es: es, index: index}
}

// Index upserts the agreement document. Failures are logged only; the index
// is derived data.
func (i *Indexer) Index(ctx context.Context, a *model.Agreement) {
	if i == nil {
		return
	}

	doc := document{
		AgreementID:      a.ID,
		AgreementNumber:  a.AgreementNumber,
		TenantFullName:   a.TenantFullName,
		TenantEmail:      a.TenantEmail,
		LandlordFullName: a.LandlordFullName,
		LandlordEmail:    a.LandlordEmail,
		PropertyAddress:  a.PropertyAddress,
		FullyVerified:    a.FullyVerified(),
		CreatedAt:        a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	res, err := i.es.IndexDocument(ctx, i.index, a.ID, doc)
	if err != nil {
		util.Error("Failed to index agreement",
			zap.String("agreement_id", a.ID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Error("Agreement index request rejected",
			zap.String("agreement_id", a.ID),
			zap.String("status", res.Status()))
	}
}

// Search runs a multi-field match over names, number, and property address.
func (i *Indexer) Search(ctx context.Context, q string, limit int) ([]Result, error) {
	if i == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query": q,
				"fields": []string{
					"agreement_number^3",
					"tenant_full_name",
					"landlord_full_name",
					"property_address",
				},
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
		},
	}

	res, err := i.es.Search(ctx, i.index, query)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search request failed: %s", res.Status())
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		results = append(results, Result{
			AgreementID:     hit.Source.AgreementID,
			AgreementNumber: hit.Source.AgreementNumber,
			TenantName:      hit.Source.TenantFullName,
			LandlordName:    hit.Source.LandlordFullName,
			PropertyAddress: hit.Source.PropertyAddress,
			FullyVerified:   hit.Source.FullyVerified,
		})
	}
	return results, nil
}
