package mongo

import (
	"context"

	"alcyxob/fitness-workspace/internal/repository"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// mongoTxnRunner implements repository.TxnRunner on driver sessions.
type mongoTxnRunner struct {
	client *mongo.Client
}

// NewMongoTxnRunner creates a TxnRunner bound to the given client.
func NewMongoTxnRunner(client *mongo.Client) repository.TxnRunner {
	return &mongoTxnRunner{client: client}
}

// WithTransaction runs fn inside one causally-consistent transaction with
// majority read/write concerns. The session context it passes to fn is the
// same context the repositories expect, so every repository call inside fn
// participates in the transaction automatically. The driver retries
// TransientTransactionError / UnknownTransactionCommitResult labels itself;
// version conflicts are not transient and surface to the caller.
func (t *mongoTxnRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	return err
}
