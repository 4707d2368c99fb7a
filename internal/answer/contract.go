package answer

import (
	"context"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/vectorstore"
)

// Retriever finds the chunks most similar to a query within one tenant.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, k int) ([]vectorstore.Match, error)
}

// Memory is the conversation transcript contract.
type Memory interface {
	Append(tenantID string, msgs ...domain.Message)
	History(tenantID string) ([]domain.Message, error)
	ArmEviction(tenantID string)
}
