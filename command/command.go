// Package command holds the discriminators understood on the dsg_local_commands
// channel and the payload shapes that travel with them.
//
// The set is open: callers register their own discriminators with Register, and
// anything in range can be sent whether registered or not. Registration only gives a
// type a name in logs and metrics and lets the device side refuse duplicates.
package command

import (
	"dsg-rpc/object"
	"fmt"
	"sort"
	"sync"
)

// ReqPath is the routing path tag of the local command channel.
const ReqPath = "dsg_local_commands"

const (
	GetDMCKey         object.ObjType = 0
	GetDMCKeyResp     object.ObjType = 1
	GetDMCAccount     object.ObjType = 2
	GetDMCAccountResp object.ObjType = 3
	SetDMCAccount     object.ObjType = 4
	SetDMCAccountResp object.ObjType = 5
	SetHTTPDomain     object.ObjType = 6
	SetHTTPDomainResp object.ObjType = 7
	GetStat           object.ObjType = 12
	GetStatResp       object.ObjType = 13
)

var (
	mu    sync.RWMutex
	names = map[object.ObjType]string{}
)

func init() {
	MustRegister(GetDMCKey, "get_dmc_key")
	MustRegister(GetDMCKeyResp, "get_dmc_key_resp")
	MustRegister(GetDMCAccount, "get_dmc_account")
	MustRegister(GetDMCAccountResp, "get_dmc_account_resp")
	MustRegister(SetDMCAccount, "set_dmc_account")
	MustRegister(SetDMCAccountResp, "set_dmc_account_resp")
	MustRegister(SetHTTPDomain, "set_http_domain")
	MustRegister(SetHTTPDomainResp, "set_http_domain_resp")
	MustRegister(GetStat, "get_stat")
	MustRegister(GetStatResp, "get_stat_resp")
}

// Register names a discriminator. It fails for out-of-range values and for a
// discriminator already registered under a different name.
func Register(t object.ObjType, name string) error {
	if !t.Valid() {
		return fmt.Errorf("command: obj_type %d out of range", t)
	}
	if name == "" {
		return fmt.Errorf("command: obj_type %d needs a name", t)
	}
	mu.Lock()
	defer mu.Unlock()
	if existing, ok := names[t]; ok && existing != name {
		return fmt.Errorf("command: obj_type %d already registered as %q", t, existing)
	}
	names[t] = name
	return nil
}

// MustRegister is Register for package init.
func MustRegister(t object.ObjType, name string) {
	if err := Register(t, name); err != nil {
		panic(err)
	}
}

// Name returns the registered name of t, or "obj_type_<n>" for unregistered values.
func Name(t object.ObjType) string {
	mu.RLock()
	defer mu.RUnlock()
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("obj_type_%d", t)
}

// Registered reports whether t has been registered.
func Registered(t object.ObjType) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := names[t]
	return ok
}

// Types lists registered discriminators in ascending order.
func Types() []object.ObjType {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]object.ObjType, 0, len(names))
	for t := range names {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
