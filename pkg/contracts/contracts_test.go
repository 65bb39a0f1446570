package contracts

import (
	"context"
	"strings"
	"testing"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/matryer/is"
)

const policy string = `
package entitystore.contract

default allow = false

allow {
	input.type == "Device"
	input.fields.battery >= 20
}
`

func TestAcceptsEntitiesMatchingThePolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	contract, err := NewPolicyContract(ctx, strings.NewReader(policy))
	is.NoErr(err)

	healthy := entities.NewRecord(entities.NewLocalIdentifier("d-1"), "Device", entities.F("battery", 80))
	is.True(contract.Accept(ctx, healthy))
}

func TestRejectsEntitiesFailingThePolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	contract, err := NewPolicyContract(ctx, strings.NewReader(policy))
	is.NoErr(err)

	drained := entities.NewRecord(entities.NewLocalIdentifier("d-2"), "Device", entities.F("battery", 5))
	is.True(!contract.Accept(ctx, drained))

	wrongType := entities.NewRecord(entities.NewLocalIdentifier("f-1"), "Function", entities.F("battery", 80))
	is.True(!contract.Accept(ctx, wrongType))
}

func TestCustomInputBuilder(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	contract, err := NewPolicyContract(ctx, strings.NewReader(policy), WithInputBuilder(func(e any) map[string]any {
		return map[string]any{
			"type":   "Device",
			"fields": map[string]any{"battery": e},
		}
	}))
	is.NoErr(err)

	is.True(contract.Accept(ctx, 42))
	is.True(!contract.Accept(ctx, 3))
}
