// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package api_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Token string `json:"token"`
		User  struct {
			ID        string `json:"id"`
			Email     string `json:"email"`
			Username  string `json:"username"`
			CreatedAt string `json:"created_at"`
		} `json:"user"`
	} `json:"data"`
}

func call(method, path, body, token string) (int, envelope) {
	GinkgoHelper()
	req, err := http.NewRequest(method, env.server.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

const (
	demoLogin = `{"email":"demo@authd.dev","password":"demo-password"}`
	michael   = `{"email":"michael@herman.com","username":"Miguel","password":"test"}`
)

var _ = Describe("Registration and login", Ordered, func() {
	BeforeAll(resetAndSeed)

	It("A: registers a new user and returns a token", func() {
		code, body := call(http.MethodPost, "/auth/register", michael, "")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body.Status).To(Equal("success"))
		Expect(body.Data.Token).NotTo(BeEmpty())
		Expect(body.Data.User.Email).To(Equal("michael@herman.com"))
	})

	It("B: rejects registering the same email again", func() {
		code, body := call(http.MethodPost, "/auth/register", michael, "")

		Expect(code).To(Equal(http.StatusConflict))
		Expect(body.Status).To(Equal("fail"))
		Expect(body.Message).To(Equal("Email already exists"))
	})

	It("C: logs in the registered user", func() {
		code, body := call(http.MethodPost, "/auth/login",
			`{"email":"michael@herman.com","password":"test"}`, "")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body.Status).To(Equal("success"))
		Expect(body.Data.Token).NotTo(BeEmpty())
		Expect(body.Data.User.Email).To(Equal("michael@herman.com"))
	})

	It("D: rejects an unregistered email", func() {
		code, body := call(http.MethodPost, "/auth/login",
			`{"email":"michael2@herman.com","password":"test"}`, "")

		Expect(code).To(Equal(http.StatusUnauthorized))
		Expect(body.Status).To(Equal("fail"))
		Expect(body.Message).To(Equal("Email does not exist"))
	})

	It("E: rejects a wrong password", func() {
		code, body := call(http.MethodPost, "/auth/login",
			`{"email":"michael@herman.com","password":"test2"}`, "")

		Expect(code).To(Equal(http.StatusUnauthorized))
		Expect(body.Status).To(Equal("fail"))
		Expect(body.Message).To(Equal("This email and password combination is not correct"))
	})
})

var _ = Describe("Auth API", func() {
	BeforeEach(resetAndSeed)

	Describe("POST /auth/register", func() {
		It("rejects an email taken by the seed fixture", func() {
			code, body := call(http.MethodPost, "/auth/register",
				`{"email":"demo@authd.dev","username":"someone","password":"other"}`, "")

			Expect(code).To(Equal(http.StatusConflict))
			Expect(body.Message).To(Equal("Email already exists"))
		})

		It("rejects an email containing a NUL byte", func() {
			code, body := call(http.MethodPost, "/auth/register",
				`{"email":"nul\u0000@authd.dev","username":"nul","password":"pw"}`, "")

			Expect(code).To(Equal(http.StatusBadRequest))
			Expect(body.Message).To(Equal("Invalid email"))
		})

		It("lets exactly one of many concurrent registrations win", func() {
			const racers = 8
			codes := make(chan int, racers)
			var wg sync.WaitGroup
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					code, _ := call(http.MethodPost, "/auth/register",
						`{"email":"race@example.com","username":"racer","password":"pw"}`, "")
					codes <- code
				}()
			}
			wg.Wait()
			close(codes)

			counts := map[int]int{}
			for c := range codes {
				counts[c]++
			}
			Expect(counts).To(Equal(map[int]int{http.StatusOK: 1, http.StatusConflict: racers - 1}))
		})
	})

	Describe("POST /auth/login", func() {
		It("logs in the seeded user", func() {
			code, body := call(http.MethodPost, "/auth/login", demoLogin, "")

			Expect(code).To(Equal(http.StatusOK))
			Expect(body.Data.User.Email).To(Equal("demo@authd.dev"))
		})

		It("treats an email with a NUL byte as unknown", func() {
			code, body := call(http.MethodPost, "/auth/login",
				`{"email":"demo\u0000@authd.dev","password":"demo-password"}`, "")

			Expect(code).To(Equal(http.StatusUnauthorized))
			Expect(body.Message).To(Equal("Email does not exist"))
		})
	})

	Describe("GET /auth/me", func() {
		It("resolves a login token to its user", func() {
			_, login := call(http.MethodPost, "/auth/login", demoLogin, "")

			code, body := call(http.MethodGet, "/auth/me", "", login.Data.Token)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body.Data.User.ID).To(Equal(login.Data.User.ID))
			Expect(body.Data.User.Username).To(Equal("Demo"))
		})

		It("returns the same created_at as registration", func() {
			_, reg := call(http.MethodPost, "/auth/register", michael, "")
			_, login := call(http.MethodPost, "/auth/login",
				`{"email":"michael@herman.com","password":"test"}`, "")

			Expect(login.Data.User.CreatedAt).To(Equal(reg.Data.User.CreatedAt))
		})

		It("rejects a token whose user was dropped by a reset", func() {
			_, login := call(http.MethodPost, "/auth/login", demoLogin, "")

			Expect(env.migrator.Reset()).To(Succeed())

			code, body := call(http.MethodGet, "/auth/me", "", login.Data.Token)
			Expect(code).To(Equal(http.StatusUnauthorized))
			Expect(body.Message).To(Equal("Invalid token"))
		})
	})
})
