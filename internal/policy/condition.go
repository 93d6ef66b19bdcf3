package policy

import (
	"net"
	"strconv"
	"strings"
)

// Operator names the condition operators this engine understands. The set is
// closed: each operator has an explicit evaluation function, and an operator
// outside the set never satisfies its condition. The upstream system treated
// unrecognized operators as satisfied; that permissive behavior is a known
// hazard and is deliberately not reproduced here.
type Operator string

const (
	OpStringEquals    Operator = "StringEquals"
	OpStringNotEquals Operator = "StringNotEquals"
	OpStringLike      Operator = "StringLike"
	OpBool            Operator = "Bool"
	OpIPAddress       Operator = "IpAddress"
	OpNumericEquals   Operator = "NumericEquals"
	OpNumericLessThan Operator = "NumericLessThan"
)

// KnownOperator reports whether name is in the closed operator set.
func KnownOperator(name string) bool {
	switch Operator(name) {
	case OpStringEquals, OpStringNotEquals, OpStringLike, OpBool, OpIPAddress,
		OpNumericEquals, OpNumericLessThan:
		return true
	}
	return false
}

// evalCondition checks one operator block against the request context. Every
// key/expected pair must hold; a missing context key never satisfies the
// condition.
func evalCondition(op Operator, pairs map[string]string, reqContext map[string]string) bool {
	for key, expected := range pairs {
		actual, ok := reqContext[key]
		if !ok {
			return false
		}
		if !evalOperator(op, expected, actual) {
			return false
		}
	}
	return true
}

func evalOperator(op Operator, expected, actual string) bool {
	switch op {
	case OpStringEquals:
		return actual == expected
	case OpStringNotEquals:
		return actual != expected
	case OpStringLike:
		return Match(expected, actual)
	case OpBool:
		return strings.EqualFold(actual, expected)
	case OpIPAddress:
		return ipMatches(expected, actual)
	case OpNumericEquals:
		a, aok := parseNumber(actual)
		e, eok := parseNumber(expected)
		return aok && eok && a == e
	case OpNumericLessThan:
		a, aok := parseNumber(actual)
		e, eok := parseNumber(expected)
		return aok && eok && a < e
	default:
		return false
	}
}

// ipMatches accepts either an exact address or a CIDR block as the expected
// value.
func ipMatches(expected, actual string) bool {
	ip := net.ParseIP(actual)
	if ip == nil {
		return false
	}
	if strings.Contains(expected, "/") {
		_, network, err := net.ParseCIDR(expected)
		if err != nil {
			return false
		}
		return network.Contains(ip)
	}
	want := net.ParseIP(expected)
	return want != nil && want.Equal(ip)
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
