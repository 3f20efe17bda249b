package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vipclub/access-server/internal/auth"
	"github.com/vipclub/access-server/internal/database"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/repository"
	"github.com/vipclub/access-server/internal/service"
)

const testBaseURL = "https://club.example"

// fakeGrantRepo keeps grants in memory with the conditional consume of the SQL store.
type fakeGrantRepo struct {
	mu         sync.Mutex
	grants     map[string]*model.AccessGrant
	err        error
	consumeErr error
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: map[string]*model.AccessGrant{}}
}

func (r *fakeGrantRepo) add(g model.AccessGrant) *model.AccessGrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	r.grants[g.ID] = &g
	return &g
}

func (r *fakeGrantRepo) get(id string) *model.AccessGrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.grants[id]; ok {
		cp := *g
		return &cp
	}
	return nil
}

func (r *fakeGrantRepo) Create(_ context.Context, p model.CreateAccessGrantParams) (*model.AccessGrant, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.add(model.AccessGrant{
		Token:       p.Token,
		TargetPage:  p.TargetPage,
		ExpiresAt:   p.ExpiresAt,
		IsPermanent: p.IsPermanent,
		AllowShare:  p.AllowShare,
	}), nil
}

func (r *fakeGrantRepo) FindByToken(_ context.Context, token string) (*model.AccessGrant, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.Token == token {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeGrantRepo) FindByID(_ context.Context, id string) (*model.AccessGrant, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.get(id), nil
}

func (r *fakeGrantRepo) List(_ context.Context, target model.TargetPage) ([]model.AccessGrant, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.AccessGrant{}
	for _, g := range r.grants {
		if target == "" || g.TargetPage == target {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeGrantRepo) MarkUsed(_ context.Context, id string) (bool, error) {
	if r.consumeErr != nil {
		return false, r.consumeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok || g.IsUsed {
		return false, nil
	}
	g.IsUsed = true
	return true, nil
}

func (r *fakeGrantRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok {
		return false, nil
	}
	g.IsUsed = true
	g.AllowShare = false
	return true, nil
}

func (r *fakeGrantRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[id]
	delete(r.grants, id)
	return ok, nil
}

func (r *fakeGrantRepo) DeleteExpiredBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeRevocationList struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (l *fakeRevocationList) RevokeGrant(_ context.Context, id string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.revoked == nil {
		l.revoked = map[string]bool{}
	}
	l.revoked[id] = true
	return nil
}

func (l *fakeRevocationList) IsGrantRevoked(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revoked[id], nil
}

// fakeMemberRepo is a minimal in-memory member store; transactions are not simulated.
type fakeMemberRepo struct {
	mu      sync.Mutex
	members []model.Member
	images  map[string][]string
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{images: map[string][]string{}}
}

func (r *fakeMemberRepo) List(context.Context) ([]model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Member{}, r.members...), nil
}

func (r *fakeMemberRepo) ListVisibleOn(_ context.Context, page model.TargetPage) ([]model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Member{}
	for _, m := range r.members {
		if (page == model.TargetPageVIP && m.ShowOnVIPPage) || (page == model.TargetPageMember && m.ShowOnMemberPage) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) FindByID(_ context.Context, id string) (*model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMemberRepo) Create(_ context.Context, p model.MemberParams) (*model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := memberFromParams(uuid.NewString(), p)
	r.members = append([]model.Member{m}, r.members...)
	return &m, nil
}

func (r *fakeMemberRepo) Update(_ context.Context, id string, p model.MemberParams) (*model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m.ID == id {
			updated := memberFromParams(id, p)
			updated.CreatedAt = m.CreatedAt
			r.members[i] = updated
			return &updated, nil
		}
	}
	return nil, nil
}

func (r *fakeMemberRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m.ID == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			delete(r.images, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMemberRepo) ListImages(_ context.Context, ids []string) ([]model.MemberImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.MemberImage{}
	for _, id := range ids {
		for i, url := range r.images[id] {
			out = append(out, model.MemberImage{ID: uuid.NewString(), MemberID: id, ImageURL: url, DisplayOrder: i})
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) ReplaceImages(_ context.Context, id string, urls []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[id] = append([]string{}, urls...)
	return nil
}

func (r *fakeMemberRepo) Stats(context.Context) (*model.MemberStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.MemberStats{TotalMembers: len(r.members)}
	locations := map[string]bool{}
	for _, m := range r.members {
		if m.MemberType == model.MemberTypeVIP {
			stats.VIPMembers++
		} else {
			stats.RegularMembers++
		}
		if m.Location != nil && *m.Location != "" {
			locations[*m.Location] = true
		}
	}
	stats.Locations = len(locations)
	return stats, nil
}

func (r *fakeMemberRepo) WithTx(*sqlx.Tx) repository.MemberRepository {
	return r
}

func memberFromParams(id string, p model.MemberParams) model.Member {
	now := time.Now()
	return model.Member{
		ID:               id,
		Name:             p.Name,
		Bio:              p.Bio,
		Location:         p.Location,
		MemberType:       p.MemberType,
		CoverImageURL:    p.CoverImageURL,
		ShowOnMemberPage: p.ShowOnMemberPage,
		ShowOnVIPPage:    p.ShowOnVIPPage,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

type fakeAdminSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.AdminSession
}

func (r *fakeAdminSessionRepo) FindByTokenHash(_ context.Context, hash string) (*model.AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[hash]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *fakeAdminSessionRepo) Create(_ context.Context, p model.CreateAdminSessionParams) (*model.AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = map[string]model.AdminSession{}
	}
	s := model.AdminSession{ID: uuid.NewString(), TokenHash: p.TokenHash, ExpiresAt: p.ExpiresAt, CreatedAt: time.Now()}
	r.sessions[p.TokenHash] = s
	return &s, nil
}

func (r *fakeAdminSessionRepo) DeleteByTokenHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, hash)
	return nil
}

func (r *fakeAdminSessionRepo) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func inlineTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// testClock stands still until a test moves it.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServices struct {
	clock   *testClock
	grants  *fakeGrantRepo
	members *fakeMemberRepo
	access  *service.AccessService
	member  *service.MemberService
}

func newTestServices() *testServices {
	clock := &testClock{now: time.Now()}
	grants := newFakeGrantRepo()
	members := newFakeMemberRepo()
	access := service.NewAccessService(grants, &fakeRevocationList{},
		auth.NewSessionTokenManager("handler-test-secret", time.Hour), testBaseURL).
		WithClock(clock.Now)
	return &testServices{
		clock:   clock,
		grants:  grants,
		members: members,
		access:  access,
		member:  service.NewMemberService(members, inlineTx),
	}
}

func timePtr(t time.Time) *time.Time { return &t }
