package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whonion/scavenger-miner/client"
)

func TestCurrentChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/challenge", r.URL.Path)
		fmt.Fprint(w, `{"code":"active","challenge":{
			"challenge_id":"c1","day":3,"challenge_number":7,
			"difficulty":"00ffffffdeadbeef","no_pre_mine":"abc","no_pre_mine_hour":"def",
			"latest_submission":"2025-11-20T18:00:00Z"}}`)
	}))
	defer srv.Close()

	ch, err := client.New(srv.URL).CurrentChallenge(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ch)
	require.Equal(t, "c1", ch.ChallengeID)
	require.Equal(t, 3, ch.Day)
	require.Equal(t, "00ffffffdeadbeef", ch.Difficulty)
}

func TestCurrentChallengeInactiveWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"waiting"}`)
	}))
	defer srv.Close()

	ch, err := client.New(srv.URL).CurrentChallenge(context.Background())
	require.NoError(t, err)
	require.Nil(t, ch)
}

func TestRegisterAlreadyRegisteredIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/register/addr-a/sig/pk", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Address already registered"}`)
	}))
	defer srv.Close()

	err := client.New(srv.URL).Register(context.Background(), "addr-a", "sig", "pk")
	require.NoError(t, err)
}

func TestRegisterOtherBadRequestFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"invalid signature"}`)
	}))
	defer srv.Close()

	err := client.New(srv.URL).Register(context.Background(), "addr-a", "sig", "pk")
	require.ErrorContains(t, err, "invalid signature")
}

func TestSubmitSolutionOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome client.Outcome
		wantErr bool
	}{
		{
			name:    "accepted with receipt",
			status:  http.StatusOK,
			body:    `{"crypto_receipt":{"id":"r1"}}`,
			outcome: client.Accepted,
		},
		{
			name:    "ok without receipt is rejected",
			status:  http.StatusOK,
			body:    `{}`,
			outcome: client.Rejected,
			wantErr: true,
		},
		{
			name:    "null receipt is rejected",
			status:  http.StatusOK,
			body:    `{"crypto_receipt":null}`,
			outcome: client.Rejected,
			wantErr: true,
		},
		{
			name:    "server error is transient",
			status:  http.StatusBadGateway,
			body:    `oops`,
			outcome: client.Transient,
			wantErr: true,
		},
		{
			name:    "duplicate",
			status:  http.StatusBadRequest,
			body:    `{"message":"Solution already exists"}`,
			outcome: client.Duplicate,
		},
		{
			name:    "other rejection",
			status:  http.StatusBadRequest,
			body:    `{"message":"invalid nonce"}`,
			outcome: client.Rejected,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/solution/addr-a/c1/ff00", r.URL.Path)
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			outcome, err := client.New(srv.URL).SubmitSolution(context.Background(), "addr-a", "c1", "ff00")
			require.Equal(t, tc.outcome, outcome)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSubmitSolutionNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	outcome, err := client.New(srv.URL).SubmitSolution(context.Background(), "addr-a", "c1", "ff00")
	require.Equal(t, client.Transient, outcome)
	require.Error(t, err)
}

func TestSubmitSolutionUnregisteredAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Address addr-a not registered"}`)
	}))
	defer srv.Close()

	outcome, err := client.New(srv.URL).SubmitSolution(context.Background(), "addr-a", "c1", "ff00")
	require.Equal(t, client.Rejected, outcome)
	require.ErrorIs(t, err, client.ErrNotRegistered)
}

func TestStatistics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/statistics/addr-a", r.URL.Path)
		fmt.Fprint(w, `{"local":{"night_allocation":1234,"receipt_count":5}}`)
	}))
	defer srv.Close()

	stats, err := client.New(srv.URL).Statistics(context.Background(), "addr-a")
	require.NoError(t, err)
	require.Equal(t, int64(1234), stats.Allocation)
	require.Equal(t, 5, stats.ReceiptCount)
}

func TestTermsMessageFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	msg := client.New(srv.URL).TermsMessage(context.Background())
	require.Equal(t, client.FallbackTermsMessage, msg)
}

func TestProbeAcceptsAnyHTTPResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	require.NoError(t, c.Probe(context.Background()))

	srv.Close()
	require.Error(t, c.Probe(context.Background()))
}
