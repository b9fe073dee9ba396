package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/pkg/identitykey"
)

// MethodRepo stores verification methods.
// PK: "METHOD#<kind>#<identity_key>" for methods, "UNIQUE#<canonical>" for
// the sentinel that enforces unique_identity_key across methods.
type MethodRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewMethodRepo(client API, tableName string) *MethodRepo {
	return &MethodRepo{client: client, tableName: tableName, now: time.Now}
}

func methodPK(identityKey string, kind domain.MethodKind) string {
	return "METHOD#" + string(kind) + "#" + identityKey
}

func uniquePK(canonical string) string {
	return "UNIQUE#" + canonical
}

func (r *MethodRepo) GetMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldPK, methodPK(identityKey, kind)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get verification method: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
	}
	var m domain.VerificationMethod
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("unmarshal verification method: %w", err)
	}
	return &m, nil
}

func (r *MethodRepo) ClaimMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	now, err := attributevalue.Marshal(r.now().UTC())
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldPK, methodPK(identityKey, kind)),
		UpdateExpression:    aws.String("SET #claimed = :true, #updated = :now REMOVE #code"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      fieldPK,
			"#claimed": fieldClaimed,
			"#updated": fieldUpdatedAt,
			"#code":    fieldSecurityCode,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  now,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("claim verification method: %w", err)
	}
	var m domain.VerificationMethod
	if err := attributevalue.UnmarshalMap(out.Attributes, &m); err != nil {
		return nil, fmt.Errorf("unmarshal verification method: %w", err)
	}
	return &m, nil
}

// ClaimMethodWithCode claims the method only if securityCode matches the
// stored code. An already claimed method is returned unchanged.
func (r *MethodRepo) ClaimMethodWithCode(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (*domain.VerificationMethod, error) {
	now, err := attributevalue.Marshal(r.now().UTC())
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldPK, methodPK(identityKey, kind)),
		UpdateExpression:    aws.String("SET #claimed = :true, #updated = :now REMOVE #code"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND (#claimed = :true OR #code = :code)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      fieldPK,
			"#claimed": fieldClaimed,
			"#updated": fieldUpdatedAt,
			"#code":    fieldSecurityCode,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  now,
			":code": &types.AttributeValueMemberS{Value: securityCode},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if !isConditionFailed(err) {
			return nil, fmt.Errorf("claim verification method: %w", err)
		}
		if _, err := r.GetMethod(ctx, identityKey, kind); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("claim verification method: %w", domain.ErrCodeMismatch)
	}
	var m domain.VerificationMethod
	if err := attributevalue.UnmarshalMap(out.Attributes, &m); err != nil {
		return nil, fmt.Errorf("unmarshal verification method: %w", err)
	}
	return &m, nil
}

func (r *MethodRepo) RecoverIdentity(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (domain.RecoverOutcome, error) {
	identityKey = identitykey.Normalize(identityKey)
	unique, err := identitykey.Unique(identityKey, kind)
	if err != nil {
		return "", err
	}

	existing, err := r.GetMethod(ctx, identityKey, kind)
	switch {
	case err == nil:
		if existing.Claimed {
			return domain.RecoverAlreadyClaimed, nil
		}
		return r.rotate(ctx, identityKey, kind, securityCode)
	case !isNotFound(err):
		return "", err
	}
	return r.create(ctx, identityKey, kind, unique, securityCode)
}

// rotate replaces the code of an unclaimed method. A claim that lands
// between the read and this write fails the condition.
func (r *MethodRepo) rotate(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (domain.RecoverOutcome, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldSecurityCode: securityCode,
		fieldUpdatedAt:    r.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	ue.Names["#pk"] = fieldPK
	ue.Names["#claimed"] = fieldClaimed
	ue.Values[":false"] = &types.AttributeValueMemberBOOL{Value: false}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldPK, methodPK(identityKey, kind)),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk) AND #claimed = :false"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.RecoverAlreadyClaimed, nil
		}
		return "", fmt.Errorf("rotate security code: %w", err)
	}
	return domain.RecoverRotated, nil
}

// create writes the method and, for e-mail, its unique-key sentinel in one
// transaction. Either item already existing cancels both.
func (r *MethodRepo) create(ctx context.Context, identityKey string, kind domain.MethodKind, unique *string, securityCode string) (domain.RecoverOutcome, error) {
	now := r.now().UTC()
	m := &domain.VerificationMethod{
		IdentityKey:       identityKey,
		Kind:              kind,
		UniqueIdentityKey: unique,
		SecurityCode:      &securityCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return "", fmt.Errorf("marshal verification method: %w", err)
	}
	pk := methodPK(identityKey, kind)
	item[fieldPK] = &types.AttributeValueMemberS{Value: pk}

	notExists := aws.String("attribute_not_exists(#pk)")
	names := map[string]string{"#pk": fieldPK}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(r.tableName),
			Item:                     item,
			ConditionExpression:      notExists,
			ExpressionAttributeNames: names,
		},
	}}
	if unique != nil {
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item: map[string]types.AttributeValue{
					fieldPK:    &types.AttributeValueMemberS{Value: uniquePK(*unique)},
					fieldOwner: &types.AttributeValueMemberS{Value: pk},
				},
				ConditionExpression:      notExists,
				ExpressionAttributeNames: names,
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RecoverConflict, nil
		}
		return "", fmt.Errorf("create verification method: %w", err)
	}
	return domain.RecoverCreated, nil
}
