package tlsopts_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

/*
	Using https://onsi.github.io/ginkgo/
	Running with $> ginkgo -cover .
*/

func TestTLSOptionsHelper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TLS Options Suite")
}
