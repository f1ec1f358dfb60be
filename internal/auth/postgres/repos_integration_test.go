// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/internal/auth/postgres"
)

var _ = Describe("Repositories", func() {
	var (
		ctx    context.Context
		users  *postgres.UserRepository
		tokens *postgres.TokenRepository
		outbox *postgres.OutboxPublisher
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		users = postgres.NewUserRepository(testPool)
		tokens = postgres.NewTokenRepository(testPool)
		outbox = postgres.NewOutboxPublisher(testPool)
	})

	saveUser := func(email string) *auth.User {
		u, err := auth.NewUser("Ada", email, "hash")
		Expect(err).NotTo(HaveOccurred())
		saved, err := users.Save(ctx, u)
		Expect(err).NotTo(HaveOccurred())
		return saved
	}

	Describe("UserRepository", func() {
		It("finds users by email regardless of case", func() {
			saved := saveUser("Ada@Example.com")

			got, err := users.GetByEmail(ctx, "ada@example.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(saved.ID))
			Expect(got.Email).To(Equal("Ada@Example.com"))
		})

		It("rejects a second user with the same email", func() {
			saveUser("ada@example.com")

			u, err := auth.NewUser("Other", "ADA@example.com", "hash")
			Expect(err).NotTo(HaveOccurred())
			_, err = users.Save(ctx, u)
			Expect(err).To(MatchError(auth.ErrDuplicateUser))
		})

		It("reports unknown emails as not found", func() {
			_, err := users.GetByEmail(ctx, "nobody@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("TokenRepository", func() {
		var (
			owner *auth.User
			tok   *auth.Token
			now   time.Time
		)

		BeforeEach(func() {
			owner = saveUser("ada@example.com")
			now = time.Now().UTC().Truncate(time.Microsecond)
			var err error
			tok, err = auth.NewToken(owner, "plain-value", now.Add(time.Hour), now)
			Expect(err).NotTo(HaveOccurred())
			_, err = tokens.Save(ctx, tok)
			Expect(err).NotTo(HaveOccurred())
		})

		It("never stores the plain value", func() {
			var count int
			Expect(testPool.QueryRow(ctx,
				`SELECT count(*) FROM tokens WHERE value_hash = $1`, "plain-value").Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("finds an active token with its owner", func() {
			got, err := tokens.FindActiveByValue(ctx, "plain-value", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(tok.ID))
			Expect(got.User).NotTo(BeNil())
			Expect(got.User.ID).To(Equal(owner.ID))
		})

		It("treats the expiry instant as expired", func() {
			_, err := tokens.FindActiveByValue(ctx, "plain-value", tok.ExpiresAt)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("keeps a revoked token revoked", func() {
			revoked := *tok
			revoked.Deleted = true
			_, err := tokens.Save(ctx, &revoked)
			Expect(err).NotTo(HaveOccurred())

			_, err = tokens.FindActiveByValue(ctx, "plain-value", now)
			Expect(err).To(MatchError(auth.ErrNotFound))

			restored := *tok
			restored.Deleted = false
			saved, err := tokens.Save(ctx, &restored)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Deleted).To(BeTrue())
		})
	})

	Describe("OutboxPublisher", func() {
		It("queues events until marked published", func() {
			payload, err := json.Marshal(auth.NewWelcomeEmail("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outbox.Publish(ctx, auth.SendEmailTopic, payload)).To(Succeed())

			pending, err := outbox.Unpublished(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Topic).To(Equal(auth.SendEmailTopic))
			Expect(string(pending[0].Payload)).To(MatchJSON(payload))

			Expect(outbox.MarkPublished(ctx, pending[0].ID)).To(Succeed())
			pending, err = outbox.Unpublished(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})

	Describe("Service on PostgreSQL", func() {
		It("runs the signup, login, validate, logout flow", func() {
			hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			svc, err := auth.NewService(users, tokens, outbox, hasher)
			Expect(err).NotTo(HaveOccurred())

			user, err := svc.SignUp(ctx, "A", "a@x.com", "pw")
			Expect(err).NotTo(HaveOccurred())

			tok, err := svc.Login(ctx, "a@x.com", "pw")
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).NotTo(BeNil())

			owner, err := svc.ValidateToken(ctx, tok.Value)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner.ID).To(Equal(user.ID))

			Expect(svc.Logout(ctx, tok.Value)).To(Succeed())
			owner, err = svc.ValidateToken(ctx, tok.Value)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(BeNil())

			pending, err := outbox.Unpublished(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
		})
	})
})
