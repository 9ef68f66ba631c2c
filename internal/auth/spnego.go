package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	krbclient "github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// SPNEGO returns a provider that negotiates a Kerberos token from the
// ambient credential cache for each request. servicePrincipal may be empty,
// in which case the SPN is derived from the request host. Like every
// provider, failures degrade to an unauthenticated request.
func SPNEGO(servicePrincipal string) HeaderProvider {
	return &spnegoProvider{spn: servicePrincipal}
}

type spnegoProvider struct {
	spn string

	once sync.Once
	cl   *krbclient.Client
}

func (p *spnegoProvider) Apply(req *http.Request) error {
	p.once.Do(p.login)
	if p.cl == nil {
		slog.Debug("no Kerberos context; sending unauthenticated request")
		return nil
	}
	if err := spnego.SetSPNEGOHeader(p.cl, req, p.spn); err != nil {
		slog.Warn("SPNEGO negotiation failed; sending unauthenticated request",
			slog.Any("error", err))
		req.Header.Del("Authorization")
	}
	return nil
}

// login loads the Kerberos configuration and credential cache once. The
// config path honors KRB5_CONFIG, the ccache honors KRB5CCNAME, both with
// the conventional defaults.
func (p *spnegoProvider) login() {
	cfgPath := os.Getenv("KRB5_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/krb5.conf"
	}
	cfg, err := krbconfig.Load(cfgPath)
	if err != nil {
		slog.Warn("kerberos config unavailable; SPNEGO disabled",
			slog.String("path", cfgPath),
			slog.Any("error", err))
		return
	}

	ccPath := strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
	if ccPath == "" {
		ccPath = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}
	ccache, err := credentials.LoadCCache(ccPath)
	if err != nil {
		slog.Warn("kerberos credential cache unavailable; SPNEGO disabled",
			slog.String("path", ccPath),
			slog.Any("error", err))
		return
	}

	cl, err := krbclient.NewFromCCache(ccache, cfg, krbclient.DisablePAFXFAST(true))
	if err != nil {
		slog.Warn("kerberos login from ccache failed; SPNEGO disabled",
			slog.Any("error", err))
		return
	}
	p.cl = cl
}
