// Attribute adapter feeding internal/filter's Predicate evaluation
// (spec §4.5's "a Call is displayed iff at least one of its messages
// satisfies the post-dissector predicates"). Column names match the
// display-filter mini-language's vocabulary (spec §4.6); filter itself
// stays decoupled from storage.Call to avoid an import cycle (see
// filter.go's Attrs doc comment), so this is the one place the two
// shapes meet.
package storage

import "github.com/Lixeiden/sngrep/internal/filter"

func messageAttrs(call *Call, msg *Message) (filter.Attrs, filter.NumericAttrs) {
	attrs := filter.Attrs{
		"callid":    call.CallID,
		"src":       call.SrcUser,
		"dst":       call.DstUser,
		"state":     call.State(),
		"transport": call.Transport,
		"method":    msg.Method,
		"requri":    msg.RequestURI,
	}
	if msg.SIP != nil {
		attrs["from"] = msg.SIP.FromURI
		attrs["to"] = msg.SIP.ToURI
	}
	nums := filter.NumericAttrs{
		"msgcnt":   int64(call.MsgCount()),
		"duration": int64(call.TotalDur().Seconds()),
		"status":   int64(msg.Status),
		"cseq":     int64(msg.CSeqNum),
	}
	return attrs, nums
}

// callMatches reports whether at least one of call's messages satisfies
// pred. A nil pred matches every Call.
func callMatches(call *Call, pred filter.Predicate) bool {
	if pred == nil {
		return true
	}
	for _, msg := range call.Messages {
		attrs, nums := messageAttrs(call, msg)
		if pred.Match(attrs, nums) {
			return true
		}
	}
	return false
}
