package agent

import (
	"context"
	"maps"

	"github.com/shopspring/decimal"

	"marketbot/internal/domain"
)

const (
	searchPageSize = 5

	newListingMatches = 3
	viewListings      = 3
	viewMatchesEach   = 2
)

var (
	newListingMinScore = decimal.RequireFromString("0.6")
	viewMinScore       = decimal.RequireFromString("0.5")
)

// act runs the business action for a classified text turn. Marketplace
// failures are reported in the result, never returned.
func (o *Orchestrator) act(ctx context.Context, sess *domain.Session, intent domain.Intent, msg string) *domain.ActionResult {
	switch intent {
	case domain.IntentPublishSupply:
		return o.publish(ctx, sess, domain.ListingSupply, msg, "处理发布供应请求失败")
	case domain.IntentPublishDemand:
		return o.publish(ctx, sess, domain.ListingDemand, msg, "处理发布需求请求失败")
	case domain.IntentSearchListings:
		return o.search(ctx, msg)
	case domain.IntentViewMatches:
		return o.viewMatches(ctx, sess)
	case domain.IntentGetStats:
		return o.stats(ctx, sess)
	default:
		return &domain.ActionResult{Success: true, ChatMode: true}
	}
}

func (o *Orchestrator) publish(ctx context.Context, sess *domain.Session, listingType, msg, failure string) *domain.ActionResult {
	info := ExtractProductInfo(msg)
	if !info.Complete() {
		return &domain.ActionResult{NeedMoreInfo: true, MissingFields: MissingFields(info), ExtractedInfo: &info}
	}
	if o.market == nil {
		return &domain.ActionResult{ExtractedInfo: &info, Error: failure}
	}

	listing, err := o.market.CreateListing(ctx, domain.ListingDraft{
		ListingType: listingType,
		PublisherID: sess.MerchantID,
		Product:     info,
	})
	if err != nil {
		o.logger.Error("create listing failed", "type", listingType, "merchant", sess.MerchantID, "err", err)
		return &domain.ActionResult{ExtractedInfo: &info, Error: failure}
	}
	id := listing.ID()
	if id == "" {
		return &domain.ActionResult{ExtractedInfo: &info, Error: "创建listing失败"}
	}

	matches, err := o.market.FindMatches(ctx, id, newListingMatches, newListingMinScore)
	if err != nil {
		o.logger.Error("find matches failed", "listing", id, "err", err)
		return &domain.ActionResult{ExtractedInfo: &info, ListingID: id, Error: failure}
	}
	return &domain.ActionResult{
		Success:       true,
		ExtractedInfo: &info,
		ListingID:     id,
		Matches:       matches,
		MatchCount:    len(matches),
	}
}

func (o *Orchestrator) search(ctx context.Context, msg string) *domain.ActionResult {
	if o.market == nil {
		return &domain.ActionResult{Error: "搜索失败"}
	}
	page, err := o.market.SearchListings(ctx, searchQuery(msg))
	if err != nil {
		o.logger.Error("search listings failed", "err", err)
		return &domain.ActionResult{Error: "搜索失败"}
	}
	return &domain.ActionResult{Success: true, Listings: page.Listings, TotalCount: page.TotalCount}
}

// viewMatches collects matches for the merchant's newest active listings,
// tagging each with the listing it was found for.
func (o *Orchestrator) viewMatches(ctx context.Context, sess *domain.Session) *domain.ActionResult {
	const failure = "获取匹配信息失败"
	if o.market == nil {
		return &domain.ActionResult{Error: failure}
	}
	listings, err := o.market.MerchantListings(ctx, sess.MerchantID, domain.StatusActive, viewListings)
	if err != nil {
		o.logger.Error("merchant listings failed", "merchant", sess.MerchantID, "err", err)
		return &domain.ActionResult{Error: failure}
	}

	all := []domain.Match{}
	for _, l := range listings {
		matches, err := o.market.FindMatches(ctx, l.ID(), viewMatchesEach, viewMinScore)
		if err != nil {
			o.logger.Error("find matches failed", "listing", l.ID(), "err", err)
			return &domain.ActionResult{Error: failure}
		}
		for _, m := range matches {
			if m == nil {
				continue
			}
			tagged := make(domain.Match, len(m)+1)
			maps.Copy(tagged, m)
			tagged["sourceListing"] = l
			all = append(all, tagged)
		}
	}
	return &domain.ActionResult{Success: true, Matches: all, MatchCount: len(all)}
}

func (o *Orchestrator) stats(ctx context.Context, sess *domain.Session) *domain.ActionResult {
	const failure = "获取统计信息失败"
	if o.market == nil {
		return &domain.ActionResult{Error: failure}
	}
	stats, err := o.market.Stats(ctx, sess.MerchantID)
	if err != nil {
		o.logger.Error("marketplace stats failed", "merchant", sess.MerchantID, "err", err)
		return &domain.ActionResult{Error: failure}
	}
	return &domain.ActionResult{Success: true, Stats: stats}
}
