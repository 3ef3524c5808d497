package controller

// View is a snapshot of everything the status page renders.
type View struct {
	Title         string `json:"title"`
	Tenant        string `json:"tenant"`
	GradientStart string `json:"-"`
	GradientEnd   string `json:"-"`

	Authenticated bool   `json:"authenticated"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Expire        string `json:"expire,omitempty"`
	RefreshCount  int    `json:"refreshCount"`

	RefreshTimer string `json:"refreshTimer"`
	IdleTimer    string `json:"idleTimer"`
	Idle         bool   `json:"idle"`

	SessionStatus  string `json:"sessionStatus"`
	SessionActive  bool   `json:"sessionActive"`
	SessionExpires string `json:"sessionExpires,omitempty"`

	ShowTokens bool        `json:"showTokens"`
	Tokens     []TokenView `json:"tokens,omitempty"`

	ShowLog  bool     `json:"showLog"`
	DebugLog []string `json:"debugLog,omitempty"`

	Error string `json:"error,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	vs := c.view
	tokens := append([]TokenView(nil), vs.tokens...)
	c.mu.Unlock()

	v := View{
		Title:         c.cfg.UI.Title,
		Tenant:        tenant(c.cfg.OIDC.Issuer),
		GradientStart: c.cfg.UI.GradientStart,
		GradientEnd:   c.cfg.UI.GradientEnd,

		Authenticated: vs.authenticated,
		Name:          vs.name,
		Email:         vs.email,
		Expire:        vs.expire,
		RefreshCount:  vs.refreshCount,

		RefreshTimer: c.refreshTimer.String(),
		IdleTimer:    c.idleTimer.String(),
		Idle:         c.idleTimer.Exceeds(c.cfg.UI.IdleThreshold),

		SessionStatus:  vs.sessionStatus,
		SessionActive:  vs.sessionActive,
		SessionExpires: vs.sessionExpires,

		ShowTokens: vs.showTokens,
		ShowLog:    vs.showLog,
		Error:      vs.errText,
	}
	if vs.showTokens {
		v.Tokens = tokens
	}
	if vs.showLog {
		v.DebugLog = c.debugLog.Lines()
	}
	return v
}
