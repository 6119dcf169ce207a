package broker

import "fmt"

// Terminal trade return codes (MT5 numbering).
const (
	RetcodeRequote           = 10004
	RetcodeReject            = 10006
	RetcodeCancel            = 10007
	RetcodePlaced            = 10008
	RetcodeDone              = 10009
	RetcodeDonePartial       = 10010
	RetcodeError             = 10011
	RetcodeTimeout           = 10012
	RetcodeInvalid           = 10013
	RetcodeInvalidVolume     = 10014
	RetcodeInvalidPrice      = 10015
	RetcodeInvalidStops      = 10016
	RetcodeTradeDisabled     = 10017
	RetcodeMarketClosed      = 10018
	RetcodeNoMoney           = 10019
	RetcodePriceChanged      = 10020
	RetcodePriceOff          = 10021
	RetcodeInvalidExpiration = 10022
	RetcodeOrderChanged      = 10023
	RetcodeTooManyRequests   = 10024
	RetcodeNoChanges         = 10025
	RetcodeServerDisables    = 10026
	RetcodeClientDisables    = 10027
	RetcodeLocked            = 10028
	RetcodeFrozen            = 10029
	RetcodeInvalidFill       = 10030
	RetcodeConnection        = 10031
	RetcodeOnlyReal          = 10032
	RetcodeLimitOrders       = 10033
	RetcodeLimitVolume       = 10034
	RetcodeInvalidOrder      = 10035
	RetcodePositionClosed    = 10036
)

var retcodeMessages = map[int]string{
	RetcodeRequote:           "Requote",
	RetcodeReject:            "Request rejected",
	RetcodeCancel:            "Request canceled by trader",
	RetcodePlaced:            "Order placed",
	RetcodeDone:              "Request completed",
	RetcodeDonePartial:       "Request partially completed",
	RetcodeError:             "Request processing error",
	RetcodeTimeout:           "Request canceled by timeout",
	RetcodeInvalid:           "Invalid request",
	RetcodeInvalidVolume:     "Invalid volume",
	RetcodeInvalidPrice:      "Invalid price",
	RetcodeInvalidStops:      "Invalid stops",
	RetcodeTradeDisabled:     "Trade is disabled",
	RetcodeMarketClosed:      "Market is closed",
	RetcodeNoMoney:           "Insufficient funds",
	RetcodePriceChanged:      "Price changed",
	RetcodePriceOff:          "No quotes to process the request",
	RetcodeInvalidExpiration: "Invalid order expiration",
	RetcodeOrderChanged:      "Order state changed",
	RetcodeTooManyRequests:   "Too many requests",
	RetcodeNoChanges:         "No changes in request",
	RetcodeServerDisables:    "Autotrading disabled by server",
	RetcodeClientDisables:    "Autotrading disabled by client terminal",
	RetcodeLocked:            "Request locked for processing",
	RetcodeFrozen:            "Order or position frozen",
	RetcodeInvalidFill:       "Invalid order filling type",
	RetcodeConnection:        "No connection with the trade server",
	RetcodeOnlyReal:          "Operation allowed only for live accounts",
	RetcodeLimitOrders:       "Pending orders limit reached",
	RetcodeLimitVolume:       "Volume limit for the symbol reached",
	RetcodeInvalidOrder:      "Invalid or prohibited order type",
	RetcodePositionClosed:    "Position already closed",
}

// RetcodeMessage returns a human-readable description of a trade retcode.
func RetcodeMessage(code int) string {
	if msg, ok := retcodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown retcode: %d", code)
}

// RetcodeClass buckets retcodes into retry decisions.
type RetcodeClass int

const (
	ClassSuccess RetcodeClass = iota
	// ClassRetryable covers conditions that a fresh quote or a different
	// fill mode can clear: requotes, stale prices, fill-mode mismatch.
	ClassRetryable
	// ClassTerminal covers explicit broker refusals. Retrying these wastes
	// the deviation budget and may duplicate risk.
	ClassTerminal
	// ClassUnknown is retried conservatively until attempts are exhausted.
	ClassUnknown
)

// Classify maps a trade retcode to a retry decision.
func Classify(code int) RetcodeClass {
	switch code {
	case RetcodeDone, RetcodeDonePartial:
		return ClassSuccess
	case RetcodeRequote, RetcodePriceChanged, RetcodePriceOff, RetcodeInvalidFill,
		RetcodeTimeout, RetcodeConnection, RetcodeTooManyRequests, RetcodeLocked:
		return ClassRetryable
	case RetcodeReject, RetcodeCancel, RetcodeInvalid, RetcodeInvalidVolume,
		RetcodeInvalidPrice, RetcodeInvalidStops, RetcodeTradeDisabled,
		RetcodeMarketClosed, RetcodeNoMoney, RetcodeServerDisables,
		RetcodeClientDisables, RetcodeFrozen, RetcodeOnlyReal,
		RetcodeLimitOrders, RetcodeLimitVolume, RetcodeInvalidOrder,
		RetcodePositionClosed:
		return ClassTerminal
	default:
		return ClassUnknown
	}
}
