package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"forgebot/internal/cache"
	"forgebot/internal/model"
)

// PageSize is the number of lines shown per page of a long view.
const PageSize = 10

const pageKeyPrefix = "pages:"

// pageState is the cached remainder of a long view, keyed by requester.
type pageState struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
	Index int      `json:"index"`
}

// paginate returns the first page of a view, stashing the full line set so
// the requester can page through it with next/prev.
func (s *Service) paginate(ctx context.Context, identity, title string, lines []string) (Result, error) {
	if len(lines) <= PageSize {
		return Result{Success: true, Message: title, Lines: lines}, nil
	}
	st := pageState{Title: title, Lines: lines}
	if err := s.savePageState(ctx, identity, st); err != nil {
		return Result{}, err
	}
	return st.render(), nil
}

// PageNext advances the requester's stored view by one page.
func (s *Service) PageNext(ctx context.Context, identity string) (Result, error) {
	return s.turnPage(ctx, identity, 1)
}

// PagePrev steps the requester's stored view back by one page.
func (s *Service) PagePrev(ctx context.Context, identity string) (Result, error) {
	return s.turnPage(ctx, identity, -1)
}

func (s *Service) turnPage(ctx context.Context, identity string, step int) (Result, error) {
	st, err := s.loadPageState(ctx, identity)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return fail("Nothing to page through. Open a list first."), nil
		}
		return Result{}, err
	}

	// Clamp rather than wrap; paging past an edge repeats the edge page.
	st.Index += step
	if st.Index < 0 {
		st.Index = 0
	}
	if last := st.lastPage(); st.Index > last {
		st.Index = last
	}
	if err := s.savePageState(ctx, identity, *st); err != nil {
		return Result{}, err
	}
	return st.render(), nil
}

func (s *Service) savePageState(ctx context.Context, identity string, st pageState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, pageKeyPrefix+model.CanonicalID(identity), payload, s.cfg.PaginationTTL)
}

func (s *Service) loadPageState(ctx context.Context, identity string) (*pageState, error) {
	payload, err := s.cache.Get(ctx, pageKeyPrefix+model.CanonicalID(identity))
	if err != nil {
		return nil, err
	}
	var st pageState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("corrupt page state: %w", err)
	}
	return &st, nil
}

func (st pageState) lastPage() int {
	if len(st.Lines) == 0 {
		return 0
	}
	return (len(st.Lines) - 1) / PageSize
}

func (st pageState) render() Result {
	start := st.Index * PageSize
	if start > len(st.Lines) {
		start = len(st.Lines)
	}
	end := start + PageSize
	if end > len(st.Lines) {
		end = len(st.Lines)
	}
	title := fmt.Sprintf("%s (page %d/%d)", st.Title, st.Index+1, st.lastPage()+1)
	return Result{Success: true, Message: title, Lines: st.Lines[start:end]}
}
