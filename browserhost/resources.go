package browserhost

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed in types
// (images, fonts, media, stylesheets or any CDP resource type). The returned
// router must be stopped with the page.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
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
	return router
}

func blocked(block map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return block["images"] || block[lower]
	case "font":
		return block["fonts"] || block[lower]
	case "stylesheet":
		return block["stylesheets"] || block[lower]
	case "document", "script", "xhr", "fetch":
		// never blocked
		return false
	}
	return block[lower]
}
