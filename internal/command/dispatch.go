// Package command maps chat-style commands onto the economy service.
// The transport (HTTP, Discord, in-game relay) only needs to deliver a
// command name, its arguments and the caller's identity.
package command

import (
	"context"
	"strconv"
	"strings"

	"forgebot/internal/model"
	"forgebot/internal/service"
)

// Request is one parsed command invocation.
type Request struct {
	Identity string            `json:"identity"`
	Kind     model.AccountKind `json:"kind"`
	Command  string            `json:"command"`
	Args     []string          `json:"args"`
}

// Dispatcher routes requests to service operations.
type Dispatcher struct {
	svc *service.Service
}

// New creates a dispatcher over the economy service.
func New(svc *service.Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Dispatch runs one command. Unknown commands and bad arguments come back
// as unsuccessful Results, never errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (service.Result, error) {
	cmd := strings.ToLower(strings.TrimSpace(req.Command))
	args := req.Args
	id := req.Identity

	// First contact creates the account, with the transport's kind. Every
	// later operation resolves the same document regardless of transport.
	kind := req.Kind
	if kind != model.KindDiscord {
		kind = model.KindGame
	}
	if _, err := d.svc.EnsureAccount(ctx, id, kind); err != nil {
		return service.Result{}, err
	}

	switch cmd {
	case "balance", "bal":
		return d.svc.Balance(ctx, id)
	case "profile", "me":
		return d.svc.Profile(ctx, id)
	case "inventory", "inv":
		return d.svc.Inventory(ctx, id)
	case "work":
		return d.svc.Work(ctx, id)
	case "gather":
		return d.svc.Gather(ctx, id)
	case "daily":
		return d.svc.Daily(ctx, id)
	case "hourly":
		return d.svc.Hourly(ctx, id)
	case "eat":
		if len(args) < 1 {
			return usage("eat <food>"), nil
		}
		return d.svc.Eat(ctx, id, strings.Join(args, " "))
	case "craft":
		return d.craft(ctx, id, args)
	case "recipes":
		return d.svc.RecipeList(ctx, id)
	case "smelt":
		return d.smelt(ctx, id, args)
	case "pay":
		return d.pay(ctx, id, args)
	case "flip":
		return d.flip(ctx, id, args)
	case "slots":
		return d.slots(ctx, id, args)
	case "market":
		return d.market(ctx, id, args)
	case "crateshop", "crates":
		return d.crateshop(ctx, id, args)
	case "clan":
		return d.clan(ctx, id, args)
	case "traits":
		return d.svc.Traits(ctx, id)
	case "reroll":
		return d.svc.RerollTraits(ctx, id)
	case "name":
		if len(args) < 1 {
			return usage("name <new name>"), nil
		}
		return d.svc.Rename(ctx, id, strings.Join(args, " "))
	case "top", "leaderboard", "rich":
		return d.svc.Leaderboard(ctx, id)
	case "event":
		return d.svc.EventStatus(ctx)
	case "link":
		if len(args) < 1 {
			return usage("link <in-game name>"), nil
		}
		return d.svc.Link(ctx, id, strings.Join(args, " "))
	case "verify":
		if len(args) < 1 {
			return usage("verify <code>"), nil
		}
		return d.svc.Verify(ctx, id, args[0])
	case "next":
		return d.svc.PageNext(ctx, id)
	case "prev", "previous":
		return d.svc.PagePrev(ctx, id)
	case "help":
		return helpResult(), nil
	default:
		return service.Result{Success: false, Message: "Unknown command. Try `help`."}, nil
	}
}

func (d *Dispatcher) craft(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) < 1 {
		return usage("craft <item> [quantity]"), nil
	}
	qty := int64(1)
	item := strings.Join(args, " ")
	if len(args) >= 2 {
		if n, err := strconv.ParseInt(args[len(args)-1], 10, 64); err == nil {
			qty = n
			item = strings.Join(args[:len(args)-1], " ")
		}
	}
	return d.svc.Craft(ctx, id, item, qty)
}

func (d *Dispatcher) smelt(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "status") {
		return d.svc.SmeltStatus(ctx, id)
	}
	qty := int64(1)
	ore := strings.Join(args, " ")
	if len(args) >= 2 {
		if n, err := strconv.ParseInt(args[len(args)-1], 10, 64); err == nil {
			qty = n
			ore = strings.Join(args[:len(args)-1], " ")
		}
	}
	return d.svc.Smelt(ctx, id, ore, qty)
}

func (d *Dispatcher) pay(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) < 2 {
		return usage("pay <player> <amount>"), nil
	}
	amount, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil {
		return usage("pay <player> <amount>"), nil
	}
	target := strings.Join(args[:len(args)-1], " ")
	return d.svc.Pay(ctx, id, target, amount)
}

func (d *Dispatcher) flip(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) < 2 {
		return usage("flip <heads|tails> <bet>"), nil
	}
	bet, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return usage("flip <heads|tails> <bet>"), nil
	}
	return d.svc.Flip(ctx, id, args[0], bet)
}

func (d *Dispatcher) slots(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) < 1 {
		return usage("slots <bet>"), nil
	}
	bet, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return usage("slots <bet>"), nil
	}
	return d.svc.Slots(ctx, id, bet)
}

func (d *Dispatcher) market(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) == 0 {
		return d.svc.MarketList(ctx, id, "")
	}
	switch strings.ToLower(args[0]) {
	case "list":
		filter := strings.Join(args[1:], " ")
		return d.svc.MarketList(ctx, id, filter)
	case "sell":
		if len(args) < 4 {
			return usage("market sell <item> <quantity> <price each>"), nil
		}
		qty, qErr := strconv.ParseInt(args[len(args)-2], 10, 64)
		price, pErr := strconv.ParseFloat(args[len(args)-1], 64)
		if qErr != nil || pErr != nil {
			return usage("market sell <item> <quantity> <price each>"), nil
		}
		item := strings.Join(args[1:len(args)-2], " ")
		return d.svc.MarketSell(ctx, id, item, qty, price)
	case "buy":
		listingID, ok := parseListingID(args[1:])
		if !ok {
			return usage("market buy <listing #>"), nil
		}
		return d.svc.MarketBuy(ctx, id, listingID)
	case "cancel":
		listingID, ok := parseListingID(args[1:])
		if !ok {
			return usage("market cancel <listing #>"), nil
		}
		return d.svc.MarketCancel(ctx, id, listingID)
	default:
		return d.svc.MarketList(ctx, id, strings.Join(args, " "))
	}
}

func (d *Dispatcher) crateshop(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) == 0 {
		return d.svc.CrateShop(ctx, id)
	}
	switch strings.ToLower(args[0]) {
	case "buy":
		if len(args) < 2 {
			return usage("crateshop buy <listing # | crate name>"), nil
		}
		if listingID, ok := parseListingID(args[1:]); ok {
			return d.svc.CrateShopBuy(ctx, id, listingID)
		}
		return d.svc.CrateShopBuyByName(ctx, id, strings.Join(args[1:], " "))
	default:
		return d.svc.CrateShop(ctx, id)
	}
}

func (d *Dispatcher) clan(ctx context.Context, id string, args []string) (service.Result, error) {
	if len(args) == 0 {
		return d.svc.ClanInfo(ctx, id, "")
	}
	sub := strings.ToLower(args[0])
	rest := args[1:]
	joined := strings.Join(rest, " ")

	switch sub {
	case "create":
		if joined == "" {
			return usage("clan create <name>"), nil
		}
		return d.svc.ClanCreate(ctx, id, joined)
	case "join":
		if joined == "" {
			return usage("clan join <code or name>"), nil
		}
		return d.svc.ClanJoin(ctx, id, joined)
	case "leave":
		return d.svc.ClanLeave(ctx, id)
	case "kick":
		if joined == "" {
			return usage("clan kick <member>"), nil
		}
		return d.svc.ClanKick(ctx, id, joined)
	case "invite":
		if joined == "" {
			return usage("clan invite <player>"), nil
		}
		return d.svc.ClanInvite(ctx, id, joined)
	case "accept":
		if joined == "" {
			return usage("clan accept <code or name>"), nil
		}
		return d.svc.ClanAccept(ctx, id, joined)
	case "decline":
		if joined == "" {
			return usage("clan decline <code or name>"), nil
		}
		return d.svc.ClanDecline(ctx, id, joined)
	case "approve":
		if joined == "" {
			return usage("clan approve <applicant>"), nil
		}
		return d.svc.ClanApprove(ctx, id, joined)
	case "reject":
		if joined == "" {
			return usage("clan reject <applicant>"), nil
		}
		return d.svc.ClanReject(ctx, id, joined)
	case "recruit":
		if joined == "" {
			return usage("clan recruit <open|closed>"), nil
		}
		return d.svc.ClanRecruit(ctx, id, joined)
	case "donate":
		amount, err := strconv.ParseFloat(joined, 64)
		if err != nil {
			return usage("clan donate <amount>"), nil
		}
		return d.svc.ClanDonate(ctx, id, amount)
	case "upgrade":
		return d.svc.ClanUpgrade(ctx, id)
	case "transfer":
		if joined == "" {
			return usage("clan transfer <member>"), nil
		}
		return d.svc.ClanTransfer(ctx, id, joined)
	case "disband":
		return d.svc.ClanDisband(ctx, id)
	case "info":
		return d.svc.ClanInfo(ctx, id, joined)
	case "list", "ranking":
		return d.svc.ClanRanking(ctx)
	case "war":
		return d.svc.ClanWarStatus(ctx)
	default:
		// Bare `clan <ref>` reads as an info request.
		return d.svc.ClanInfo(ctx, id, strings.Join(args, " "))
	}
}

func parseListingID(args []string) (int64, bool) {
	if len(args) < 1 {
		return 0, false
	}
	raw := strings.TrimPrefix(args[0], "#")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func usage(u string) service.Result {
	return service.Result{Success: false, Message: "Usage: `" + u + "`"}
}

func helpResult() service.Result {
	return service.Result{
		Success: true,
		Message: "Commands:",
		Lines: []string{
			"balance, profile, inventory, top",
			"work, gather, daily, hourly",
			"craft <item> [qty], recipes, eat <food>, smelt <ore> [qty]",
			"flip <heads|tails> <bet>, slots <bet>",
			"market [sell|buy|cancel], crateshop [buy]",
			"pay <player> <amount>, traits, reroll, name <new name>",
			"clan [create|join|leave|invite|donate|upgrade|war|...]",
			"link <in-game name>, verify <code>, event, next, prev",
		},
	}
}
