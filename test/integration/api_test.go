// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/oklog/ulid/v2"
)

func uniqueName(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}

func postJSON(path string, body any) *http.Response {
	payload, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func login(username, password string) *http.Response {
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := http.PostForm(env.server.URL+"/token", form)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var body map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("HTTP API on PostgreSQL", func() {
	It("reports the database as reachable", func() {
		Expect(env.handle.Backend).To(Equal("postgres"))
		Expect(env.handle.Ping(env.ctx)).To(Succeed())
	})

	It("registers, logs in and resolves the current user", func() {
		name := uniqueName("alice")

		resp := postJSON("/register", map[string]any{
			"username":  name,
			"password":  "wonderland",
			"email":     "alice@example.com",
			"full_name": "Alice Liddell",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		registered := decode(resp)
		Expect(registered).To(HaveKeyWithValue("username", name))
		Expect(registered).NotTo(HaveKey("hashed_password"))

		resp = login(name, "wonderland")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		token := decode(resp)
		Expect(token).To(HaveKeyWithValue("token_type", "bearer"))

		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/users/me", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+token["access_token"].(string))
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		me := decode(resp)
		Expect(me).To(HaveKeyWithValue("username", name))
		Expect(me).To(HaveKeyWithValue("email", "alice@example.com"))
		Expect(me).To(HaveKeyWithValue("full_name", "Alice Liddell"))
	})

	It("rejects a wrong password", func() {
		name := uniqueName("bob")
		Expect(postJSON("/register", map[string]any{"username": name, "password": "builder"}).StatusCode).
			To(Equal(http.StatusOK))

		resp := login(name, "wrong")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(decode(resp)).To(HaveKeyWithValue("detail", "Incorrect username or password"))
	})

	It("allows exactly one of several concurrent registrations of a username", func() {
		name := uniqueName("carol")

		const attempts = 8
		statuses := make([]int, attempts)
		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp := postJSON("/register", map[string]any{"username": name, "password": "secret"})
				resp.Body.Close()
				statuses[i] = resp.StatusCode
			}()
		}
		wg.Wait()

		Expect(statuses).To(HaveEach(BeElementOf(http.StatusOK, http.StatusBadRequest)))
		ok := 0
		for _, status := range statuses {
			if status == http.StatusOK {
				ok++
			}
		}
		Expect(ok).To(Equal(1))
	})
})
