package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking fails requests for the listed resource types and
// returns a func that stops the interception.
func applyResourceBlocking(page *rod.Page, types []string) func() {
	block := make(map[string]bool, len(types))
	for _, t := range types {
		block[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked(block, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return func() { _ = router.Stop() }
}

// blocked maps CDP resource types to config names. Scripts and documents
// are never blocked: the challenge needs them.
func blocked(block map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "image":
		return block["images"]
	case "font":
		return block["fonts"]
	case "media":
		return block["media"]
	case "stylesheet":
		return block["stylesheets"]
	}
	return false
}
