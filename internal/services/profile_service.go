package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// DefaultSearchLimit caps profile search results.
const DefaultSearchLimit = 20

var usernameRE = regexp.MustCompile(`^[a-z0-9._]{3,30}$`)

// ProfilePatch holds optional profile updates. Nil fields are left unchanged.
type ProfilePatch struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
}

// ProfileService reads and updates profiles.
type ProfileService struct {
	DB  *gorm.DB
	Bus realtime.Publisher
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, bus realtime.Publisher) *ProfileService {
	return &ProfileService{DB: db, Bus: bus}
}

// foldLower lower-cases s. A Caser is stateful, so one is built per call.
func foldLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func normalizeUsername(u string) (string, error) {
	u = foldLower(strings.TrimSpace(u))
	if !usernameRE.MatchString(u) {
		return "", ErrInvalidInput
	}
	return u, nil
}

// Get returns a profile with follower, following and post counts.
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.ProfileView, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("profile.id", id),
		),
	)
	defer span.End()

	p, err := repo.GetProfile(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	followers, following, err := repo.FollowCounts(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	posts, err := repo.CountPostsByOwners(ctx, s.DB, []string{id})
	if err != nil {
		return nil, classify(err)
	}
	return &domain.ProfileView{Profile: *p, Followers: followers, Following: following, Posts: posts}, nil
}

// Update applies patch to the caller's own profile.
func (s *ProfileService) Update(ctx context.Context, id string, patch ProfilePatch) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("profile.id", id),
		),
	)
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	fields := map[string]any{}
	if patch.Username != nil {
		u, err := normalizeUsername(*patch.Username)
		if err != nil {
			return nil, err
		}
		fields["username"] = u
	}
	if patch.FullName != nil {
		name := normalizeText(*patch.FullName)
		if utf8.RuneCountInString(name) > 100 {
			return nil, ErrTooLong
		}
		fields["full_name"] = name
	}
	if patch.Bio != nil {
		bio := normalizeText(*patch.Bio)
		if utf8.RuneCountInString(bio) > MaxBioRunes {
			return nil, ErrTooLong
		}
		fields["bio"] = bio
	}
	if patch.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*patch.AvatarURL)
	}

	if err := repo.UpdateProfile(ctx, s.DB, id, fields); err != nil {
		return nil, classify(err)
	}
	p, err := repo.GetProfile(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	if len(fields) > 0 {
		publish(ctx, s.Bus, realtime.Event{Entity: realtime.EntityProfiles, Op: realtime.OpUpdate, RecordID: id, Key: id})
	}
	return p, nil
}

// Ensure creates the profile row for id when it does not exist yet. A blank
// username defaults to "user_" plus the first eight characters of the ID.
func (s *ProfileService) Ensure(ctx context.Context, id, username string) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Ensure",
		trace.WithAttributes(
			attribute.String("profile.id", id),
		),
	)
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(username) == "" {
		username = "user_" + defaultHandle(id)
	}
	u, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	created, err := repo.EnsureProfile(ctx, s.DB, id, u)
	if err != nil {
		return nil, classify(err)
	}
	if created {
		publish(ctx, s.Bus, realtime.Event{Entity: realtime.EntityProfiles, Op: realtime.OpInsert, RecordID: id, Key: id})
	}
	p, err := repo.GetProfile(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func defaultHandle(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	for b.Len() < 3 {
		b.WriteByte('0')
	}
	return b.String()
}

// Search finds profiles whose username contains q, case-insensitively.
func (s *ProfileService) Search(ctx context.Context, q string, limit int) ([]domain.ProfileSnapshot, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("query", q),
		),
	)
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.ProfileSnapshot{}, nil
	}
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}
	rows, err := repo.SearchProfiles(ctx, s.DB, foldLower(q), limit)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.ProfileSnapshot, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.Snapshot())
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}
