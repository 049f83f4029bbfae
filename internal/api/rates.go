package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/model"
)

// rateAttributes is the full attribute set of a rate resource. Fields the
// importer never sets are sent as explicit nulls; the platform rejects
// payloads with absent attributes on some versions.
type rateAttributes struct {
	Rate                 json.Number `json:"rate"`
	RateCol              *string     `json:"rate_col"`
	MinCommit            *int        `json:"min_commit"`
	EffectiveDate        string      `json:"effective_date"`
	EndDate              *string     `json:"end_date"`
	Fixed                *string     `json:"fixed"`
	FixedCol             *string     `json:"fixed_col"`
	CogsRate             json.Number `json:"cogs_rate"`
	CogsRateCol          *string     `json:"cogs_rate_col"`
	CogsFixed            *string     `json:"cogs_fixed"`
	CogsFixedCol         *string     `json:"cogs_fixed_col"`
	TierAggregationLevel *string     `json:"tier_aggregation_level"`
}

type resourceID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// relationship marshals to {"data": null} when Data is nil, which is how a
// list price drops its account reference.
type relationship struct {
	Data *resourceID `json:"data"`
}

type listRelationship struct {
	Data []resourceID `json:"data"`
}

type rateRelationships struct {
	Service   relationship      `json:"service"`
	Account   relationship      `json:"account"`
	Ratetiers *listRelationship `json:"ratetiers,omitempty"`
}

type rateResource struct {
	Type          string            `json:"type"`
	Attributes    rateAttributes    `json:"attributes"`
	Relationships rateRelationships `json:"relationships"`
	Lid           string            `json:"lid,omitempty"`
}

type atomicOperation struct {
	Op   string       `json:"op"`
	Data rateResource `json:"data"`
}

type atomicRequest struct {
	Operations []atomicOperation `json:"atomic:operations"`
}

type atomicResponse struct {
	Results []struct {
		Data json.RawMessage `json:"data"`
	} `json:"atomic:results"`
}

type documentRequest struct {
	Data rateResource `json:"data"`
}

// simpleRateRequest is the reduced shape accepted by newer instances that
// reject the full attribute set.
type simpleRateRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Rate          json.Number `json:"rate"`
			CogsRate      json.Number `json:"cogs_rate"`
			EffectiveDate string      `json:"effective_date"`
		} `json:"attributes"`
	} `json:"data"`
}

// newRateResource builds the rate resource for one record. Atomic payloads
// carry a client-chosen lid and an empty ratetiers relationship; the plain
// JSON:API form carries neither.
func newRateResource(record model.RateRecord, atomic bool) rateResource {
	resource := rateResource{
		Type: "rate",
		Attributes: rateAttributes{
			Rate:          json.Number(record.Rate.String()),
			CogsRate:      json.Number(record.Cogs.String()),
			EffectiveDate: record.EffectiveDate,
		},
		Relationships: rateRelationships{
			Service: relationship{Data: &resourceID{Type: "service", ID: strconv.FormatInt(record.ServiceID, 10)}},
		},
	}

	if record.ListPrice() {
		zero := 0
		resource.Attributes.MinCommit = &zero
	} else {
		resource.Relationships.Account = relationship{
			Data: &resourceID{Type: "account", ID: strconv.FormatInt(*record.AccountID, 10)},
		}
	}

	if atomic {
		resource.Lid = uuid.NewString()
		resource.Relationships.Ratetiers = &listRelationship{Data: make([]resourceID, 0)}
	}

	return resource
}

func newSimpleRateRequest(record model.RateRecord) simpleRateRequest {
	var req simpleRateRequest
	req.Data.Type = "rate"
	req.Data.Attributes.Rate = json.Number(record.Rate.String())
	req.Data.Attributes.CogsRate = json.Number(record.Cogs.String())
	req.Data.Attributes.EffectiveDate = record.EffectiveDate
	return req
}

// CreateRateBatch submits all records in one atomic multi-operation request.
// It returns how many result entries carried a created resource; entries
// without a data payload simply count as not created.
func (c *Client) CreateRateBatch(ctx context.Context, records []model.RateRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	operations := make([]atomicOperation, 0, len(records))
	for _, record := range records {
		operations = append(operations, atomicOperation{Op: "add", Data: newRateResource(record, true)})
	}

	body, err := c.postJSON(ctx, "/v2/", atomicContentType, atomicRequest{Operations: operations})
	if err != nil {
		return 0, err
	}

	var parsed atomicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse atomic response: %w", err)
	}

	created := 0
	for _, result := range parsed.Results {
		if len(result.Data) > 0 && string(result.Data) != "null" {
			created++
		}
	}

	c.logger.Debug("batch submitted", "records", len(records), "created", created)
	return created, nil
}

// submitStrategy is one way of creating a single rate. Strategies are a
// fixed ordered list; CreateRate walks them until one succeeds.
type submitStrategy struct {
	build       func(model.RateRecord) any
	name        string
	path        string
	contentType string
}

func submitStrategies() []submitStrategy {
	return []submitStrategy{
		{
			name:        "atomic",
			path:        "/v2/",
			contentType: atomicContentType,
			build: func(r model.RateRecord) any {
				return atomicRequest{Operations: []atomicOperation{{Op: "add", Data: newRateResource(r, true)}}}
			},
		},
		{
			name:        "plain",
			path:        "/v1/rates",
			contentType: jsonAPIContentType,
			build: func(r model.RateRecord) any {
				return documentRequest{Data: newRateResource(r, false)}
			},
		},
		{
			name:        "simplified",
			path:        "/v2/rates",
			contentType: jsonAPIContentType,
			build: func(r model.RateRecord) any {
				return newSimpleRateRequest(r)
			},
		},
	}
}

// CreateRate submits a single record, trying each strategy in order. An
// authentication failure stops the chain immediately; anything else falls
// through to the next strategy.
func (c *Client) CreateRate(ctx context.Context, record model.RateRecord) error {
	var lastErr error
	for _, strategy := range submitStrategies() {
		_, err := c.postJSON(ctx, strategy.path, strategy.contentType, strategy.build(record))
		if err == nil {
			if lastErr != nil {
				c.logger.Debug("rate created after fallback", "strategy", strategy.name, "key", record.Key().String())
			}
			return nil
		}
		if errors.Is(err, common.ErrUnauthorized) {
			return err
		}
		c.logger.Debug("rate submission strategy failed", "strategy", strategy.name, "key", record.Key().String(), "error", err)
		lastErr = err
	}
	return fmt.Errorf("all submission strategies failed: %w", lastErr)
}
