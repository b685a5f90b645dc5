package catalog

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxMembershipValues is the backend's cap on the number of operands in a
// single IN / NOT IN membership clause. Larger id sets must go through
// ByIDs or ExcludingIDs, which chunk or fall back to scan-and-filter.
const MaxMembershipValues = 10

// collectionKeyExpr is the key condition selecting one collection's partition.
const collectionKeyExpr = "#collection = :collection"

func collectionKeyNames() map[string]string {
	return map[string]string{"#collection": attrCollection}
}

func collectionKeyValues(collection string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":collection": &types.AttributeValueMemberS{Value: collection},
	}
}

// membershipExpr builds a "one-of" (or, negated, "none-of") filter fragment
// for up to MaxMembershipValues ids. prefix keeps placeholders distinct when
// a request carries several membership clauses. Callers enforce the cap.
func membershipExpr(prefix string, ids []string, negate bool) (string, map[string]string, map[string]types.AttributeValue) {
	nameKey := "#" + prefix
	names := map[string]string{nameKey: FieldID}
	values := make(map[string]types.AttributeValue, len(ids))
	operands := ""
	for i, id := range ids {
		ph := fmt.Sprintf(":%s%d", prefix, i)
		values[ph] = &types.AttributeValueMemberS{Value: id}
		if i > 0 {
			operands += ", "
		}
		operands += ph
	}
	expr := fmt.Sprintf("%s IN (%s)", nameKey, operands)
	if negate {
		expr = "NOT (" + expr + ")"
	}
	return expr, names, values
}

// mergeExprNames merges expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// mergeExprValues merges expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
