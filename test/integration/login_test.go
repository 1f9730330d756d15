// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"

	"github.com/beatgate/beatgate/internal/alert"
	"github.com/beatgate/beatgate/internal/channel"
	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/httpd"
	"github.com/beatgate/beatgate/internal/login"
	"github.com/beatgate/beatgate/internal/packet"
	"github.com/beatgate/beatgate/internal/session"
	"github.com/beatgate/beatgate/internal/stream"
	"github.com/beatgate/beatgate/internal/user"
	"github.com/beatgate/beatgate/internal/user/rediscache"
)

// memoryStore is a self-contained user.Store backing the end-to-end
// suite. One account, no external services.
type memoryStore struct {
	ident    user.Identity
	password string
	banned   bool
}

func (m *memoryStore) ResolveUsername(_ context.Context, username string) (int32, error) {
	if !strings.EqualFold(username, m.ident.Username) {
		return 0, user.ErrNotFound
	}
	return m.ident.ID, nil
}

func (m *memoryStore) VerifyPassword(_ context.Context, _ int32, proof string) (bool, error) {
	return proof == m.password, nil
}

func (m *memoryStore) GetIdentity(_ context.Context, _ int32) (*user.Identity, error) {
	ident := m.ident
	return &ident, nil
}

func (m *memoryStore) IsBanned(_ context.Context, _ int32) (bool, error)     { return m.banned, nil }
func (m *memoryStore) IsLocked(_ context.Context, _ int32) (bool, error)     { return false, nil }
func (m *memoryStore) IsRestricted(_ context.Context, _ int32) (bool, error) { return false, nil }
func (m *memoryStore) IsFlagged(_ context.Context, _ int32) (bool, error)    { return false, nil }

func (m *memoryStore) NeedsSecondFactor(_ context.Context, _ int32, _ string) (bool, error) {
	return false, nil
}

func (m *memoryStore) HasVerifiedHardware(_ context.Context, _ int32) (bool, error) {
	return true, nil
}

func (m *memoryStore) VerifyHardware(_ context.Context, _ int32, _ []string) (bool, error) {
	return true, nil
}

func (m *memoryStore) RecordHardware(_ context.Context, _ int32, _ []string, _ bool) (bool, error) {
	return true, nil
}

func (m *memoryStore) RecordOrigin(_ context.Context, _ int32, _ string) error { return nil }

func (m *memoryStore) RecordClientVersion(_ context.Context, _ int32, _ string) error {
	return nil
}

func (m *memoryStore) LastClientVersion(_ context.Context, _ int32) (string, error) {
	return "", nil
}

func (m *memoryStore) Restrict(_ context.Context, _ int32) error { return nil }

func (m *memoryStore) SetCountry(_ context.Context, _ int32, _ string) error { return nil }

func (m *memoryStore) FriendIDs(_ context.Context, _ int32) ([]int32, error) {
	return []int32{2}, nil
}

var _ = Describe("Login over HTTP", func() {
	var (
		mini     *miniredis.Miniredis
		verified *rediscache.VerifiedCache
		store    *memoryStore
		flags    *login.Flags
		sessions *session.Registry
		srv      *httpd.Server
		errCh    <-chan error
		baseURL  string
	)

	BeforeEach(func() {
		var err error
		mini, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		verified = rediscache.NewWithClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}))

		store = &memoryStore{
			ident: user.Identity{
				ID:         1001,
				Username:   "cookiezi",
				Privileges: user.PrivNormal | user.PrivPublic,
				Country:    "KR",
			},
			password: "md5proof",
		}
		flags = &login.Flags{}
		sessions = session.NewRegistry()

		pipeline, err := login.NewPipeline(login.Deps{
			Users:    store,
			Verified: verified,
			Sessions: sessions,
			Channels: channel.NewRegistry(
				&channel.Channel{Name: "#osu", Topic: "general chat", PublicRead: true},
			),
			Geo:       &geoloc.Static{Location: geoloc.Location{Country: "KR"}},
			Alerts:    &alert.LogNotifier{},
			Broadcast: stream.NewBroadcaster(),
			Config: login.Config{
				MinimumVersion:  "20190101",
				ProtocolVersion: 19,
				AntiCheat:       true,
				DefaultChannels: []string{"#osu"},
			},
			Flags: flags,
		})
		Expect(err).NotTo(HaveOccurred())

		srv = httpd.NewServer("127.0.0.1:0", pipeline, nil, nil)
		errCh, err = srv.Start()
		Expect(err).NotTo(HaveOccurred())
		baseURL = "http://" + srv.Addr() + "/"
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(srv.Stop(ctx)).To(Succeed())
		Eventually(errCh).Should(BeClosed())
		Expect(verified.Close()).To(Succeed())
		mini.Close()
	})

	post := func(body string) (*http.Response, []byte) {
		resp, err := http.Post(baseURL, "text/plain", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		payload, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Body.Close()).To(Succeed())
		return resp, payload
	}

	validBody := "cookiezi\nmd5proof\nb20200811.1|9|1|aa:bb:cc:dd:ee|0\n"

	It("logs a valid account in and streams the bootstrap packets", func() {
		resp, payload := post(validBody)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		token := resp.Header.Get(httpd.TokenHeader)
		Expect(token).NotTo(BeEmpty())
		Expect(token).NotTo(Equal(login.FailureSessionID))

		Expect(bytes.Contains(payload, packet.LoginReply(1001))).To(BeTrue())
		Expect(bytes.Contains(payload, packet.ChannelInfoEnd())).To(BeTrue())

		Expect(sessions.Get(token)).NotTo(BeNil())
		Expect(sessions.Len()).To(Equal(1))
	})

	It("caches hardware verification across logins", func() {
		post(validBody)

		ok, cached, err := verified.Verified(context.Background(), 1001)
		Expect(err).NotTo(HaveOccurred())
		Expect(cached).To(BeTrue())
		Expect(ok).To(BeTrue())
	})

	It("rejects a wrong password without a session", func() {
		resp, payload := post("cookiezi\nwrongproof\nb20200811.1|9|1|aa:bb:cc:dd:ee|0\n")

		Expect(resp.Header.Get(httpd.TokenHeader)).To(Equal(login.FailureSessionID))
		Expect(payload).To(Equal(packet.LoginReply(packet.ReplyInvalidCredentials)))
		Expect(sessions.Len()).To(BeZero())
	})

	It("rejects a banned account", func() {
		store.banned = true
		resp, payload := post(validBody)

		Expect(resp.Header.Get(httpd.TokenHeader)).To(Equal(login.FailureSessionID))
		Expect(bytes.Contains(payload, packet.LoginReply(packet.ReplyBanned))).To(BeTrue())
		Expect(sessions.Len()).To(BeZero())
	})

	It("ejects non-staff logins during maintenance", func() {
		flags.SetMaintenance(true)
		resp, _ := post(validBody)

		Expect(resp.Header.Get(httpd.TokenHeader)).To(Equal(login.FailureSessionID))
		Expect(sessions.Len()).To(BeZero())

		flags.SetMaintenance(false)
		resp, _ = post(validBody)
		Expect(resp.Header.Get(httpd.TokenHeader)).NotTo(Equal(login.FailureSessionID))
	})

	It("replaces a previous session on re-login", func() {
		resp, _ := post(validBody)
		first := resp.Header.Get(httpd.TokenHeader)

		resp, _ = post(validBody)
		second := resp.Header.Get(httpd.TokenHeader)

		Expect(second).NotTo(Equal(first))
		Expect(sessions.Get(first)).To(BeNil())
		Expect(sessions.Get(second)).NotTo(BeNil())
		Expect(sessions.Len()).To(Equal(1))
	})
})
