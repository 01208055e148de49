package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace_client",
		Name:      "api_responses_total",
		Help:      "Marketplace API responses by method and status class.",
	}, []string{"method", "class"})

	walletConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace_client",
		Name:      "wallet_connects_total",
		Help:      "Wallet connect, link and switch attempts by outcome.",
	}, []string{"flow", "result"})

	signatureRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace_client",
		Name:      "wallet_signature_requests_total",
		Help:      "Signature requests sent to wallet adapters.",
	}, []string{"kind"})

	uploadBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace_client",
		Name:      "upload_batches_total",
		Help:      "Upload batches submitted by phase and result.",
	}, []string{"phase", "result"})
)

func ObserveAPIResponse(method string, status int) {
	class := "network_error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	apiResponses.WithLabelValues(method, class).Inc()
}

func ObserveWalletFlow(flow string, err error) {
	walletConnects.WithLabelValues(flow, result(err)).Inc()
}

func ObserveSignatureRequest(kind string) {
	signatureRequests.WithLabelValues(kind).Inc()
}

func ObserveUploadBatch(phase string, err error) {
	uploadBatches.WithLabelValues(phase, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
