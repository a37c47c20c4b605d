package errors

import "strconv"

// ERR is the numeric error code carried by every *Error.
type ERR int32

const (
	ERR_UNKNOWN              ERR = 0
	ERR_INVALID_ARGUMENT     ERR = 1
	ERR_NOT_FOUND            ERR = 3
	ERR_PROCESSING           ERR = 4
	ERR_CONFIGURATION        ERR = 5
	ERR_CONTEXT_CANCELED     ERR = 7
	ERR_SERVICE_NOT_STARTED  ERR = 11
	ERR_SERVICE_ERROR        ERR = 12
	ERR_BLOCK_NOT_FOUND      ERR = 20
	ERR_BLOCK_INVALID        ERR = 21
	ERR_BLOCK_PARENT_UNKNOWN ERR = 23
	ERR_TX_NOT_FOUND         ERR = 30
	ERR_TX_INVALID           ERR = 31
	ERR_MALFORMED            ERR = 40
	ERR_PROTOCOL_VIOLATION   ERR = 41
	ERR_RESOURCE_EXHAUSTED   ERR = 42
	ERR_STALL                ERR = 43
	ERR_DUPLICATE_ID         ERR = 44
	ERR_ALREADY_PRESENT      ERR = 45
)

// ERR_name maps codes to their names, ERR_value is the reverse mapping.
var (
	ERR_name = map[int32]string{
		0:  "UNKNOWN",
		1:  "INVALID_ARGUMENT",
		3:  "NOT_FOUND",
		4:  "PROCESSING",
		5:  "CONFIGURATION",
		7:  "CONTEXT_CANCELED",
		11: "SERVICE_NOT_STARTED",
		12: "SERVICE_ERROR",
		20: "BLOCK_NOT_FOUND",
		21: "BLOCK_INVALID",
		23: "BLOCK_PARENT_UNKNOWN",
		30: "TX_NOT_FOUND",
		31: "TX_INVALID",
		40: "MALFORMED",
		41: "PROTOCOL_VIOLATION",
		42: "RESOURCE_EXHAUSTED",
		43: "STALL",
		44: "DUPLICATE_ID",
		45: "ALREADY_PRESENT",
	}
	ERR_value = func() map[string]int32 {
		m := make(map[string]int32, len(ERR_name))
		for k, v := range ERR_name {
			m[v] = k
		}

		return m
	}()
)

func (x ERR) String() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return "ERR(" + strconv.Itoa(int(x)) + ")"
}
