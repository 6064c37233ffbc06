package otpsrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/otp"
	"github.com/Abraxas-365/bifrost/pkg/otp/otpsrv"
)

// fakeOTPStore mimics the Redis adapter: one live record per
// (identifier, channel), deep-link records keyed by token, consume deletes.
type fakeOTPStore struct {
	records map[string]otp.Record
	byID    map[string]string
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{records: make(map[string]otp.Record), byID: make(map[string]string)}
}

func (f *fakeOTPStore) storageKey(rec otp.Record) string {
	if rec.Channel == otp.ChannelDeepLink {
		return rec.Channel + "/" + rec.Code
	}
	return rec.Channel + "/" + rec.Identifier
}

func (f *fakeOTPStore) Save(_ context.Context, rec otp.Record, _ time.Duration) error {
	k := f.storageKey(rec)
	f.records[k] = rec
	if rec.ID != "" {
		f.byID[rec.ID] = k
	}
	return nil
}

func (f *fakeOTPStore) consume(key, code string) (*otp.Record, error) {
	rec, ok := f.records[key]
	if !ok || rec.Code != code {
		return nil, otp.ErrInvalidOrExpired()
	}
	delete(f.records, key)
	delete(f.byID, rec.ID)
	return &rec, nil
}

func (f *fakeOTPStore) Consume(_ context.Context, identifier, channel, code string) (*otp.Record, error) {
	if channel == otp.ChannelDeepLink {
		return f.consume(channel+"/"+code, code)
	}
	return f.consume(channel+"/"+identifier, code)
}

func (f *fakeOTPStore) ConsumeByID(_ context.Context, id, code string) (*otp.Record, error) {
	key, ok := f.byID[id]
	if !ok {
		return nil, otp.ErrInvalidOrExpired()
	}
	return f.consume(key, code)
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) SendOTP(_ context.Context, to, code, _ string) error {
	f.sent = append(f.sent, to+":"+code)
	return nil
}

func TestIssueAndVerify(t *testing.T) {
	store := newFakeOTPStore()
	mailer := &fakeMailer{}
	svc := otpsrv.NewOTPService(store, mailer)
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "MyApp")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(rec.Code) != otp.CodeLength {
		t.Fatalf("expected a %d-digit code, got %q", otp.CodeLength, rec.Code)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(mailer.sent))
	}

	got, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, rec.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Identifier != "a@b.c" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestVerify_CodeIsSingleUse(t *testing.T) {
	store := newFakeOTPStore()
	svc := otpsrv.NewOTPService(store, &fakeMailer{})
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, rec.Code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, rec.Code); err == nil {
		t.Fatal("a code must not be redeemable twice")
	}
}

func TestIssue_ReplacesPriorCode(t *testing.T) {
	store := newFakeOTPStore()
	svc := otpsrv.NewOTPService(store, &fakeMailer{})
	ctx := context.Background()

	first, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "")
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "")
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, first.Code); err == nil {
		t.Fatal("the replaced code must be dead")
	}
	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, second.Code); err != nil {
		t.Fatalf("the new code must verify: %v", err)
	}
}

func TestVerify_CleansPastedWhitespace(t *testing.T) {
	store := newFakeOTPStore()
	svc := otpsrv.NewOTPService(store, &fakeMailer{})
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	padded := " " + rec.Code[:3] + " " + rec.Code[3:] + " "
	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, padded); err != nil {
		t.Fatalf("whitespace in a pasted code must be tolerated: %v", err)
	}
}

func TestVerifyByID(t *testing.T) {
	store := newFakeOTPStore()
	svc := otpsrv.NewOTPService(store, &fakeMailer{})
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "a@b.c", otp.ChannelEmail, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := svc.VerifyByID(ctx, rec.ID, rec.Code)
	if err != nil {
		t.Fatalf("verify by id: %v", err)
	}
	if got.Identifier != "a@b.c" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestDeepLinkTokensCoexist(t *testing.T) {
	store := newFakeOTPStore()
	svc := otpsrv.NewOTPService(store, &fakeMailer{})
	ctx := context.Background()

	first, err := svc.IssueDeepLink(ctx, "tg-1", kernel.AccountID("acc-1"))
	if err != nil {
		t.Fatalf("first deep link: %v", err)
	}
	second, err := svc.IssueDeepLink(ctx, "tg-1", kernel.AccountID("acc-1"))
	if err != nil {
		t.Fatalf("second deep link: %v", err)
	}

	// Unlike numeric codes, both tokens stay live until redeemed.
	if _, err := svc.VerifyDeepLink(ctx, first.Code); err != nil {
		t.Fatalf("first token: %v", err)
	}
	got, err := svc.VerifyDeepLink(ctx, second.Code)
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if got.AccountID != kernel.AccountID("acc-1") {
		t.Fatalf("deep link must carry the account binding, got %+v", got)
	}
}

func TestVerify_MissingInput(t *testing.T) {
	svc := otpsrv.NewOTPService(newFakeOTPStore(), &fakeMailer{})
	ctx := context.Background()

	if _, err := svc.Verify(ctx, "", otp.ChannelEmail, "123456"); err == nil {
		t.Fatal("empty identifier must be rejected")
	}
	if _, err := svc.Verify(ctx, "a@b.c", otp.ChannelEmail, "   "); err == nil {
		t.Fatal("blank code must be rejected")
	}
}
