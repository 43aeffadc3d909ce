// janusctl es el CLI de administración del broker. Habla con /v1/admin
// y opera el keystore local (rotación de claves de firma).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwtx "github.com/dropDatabas3/janus/internal/jwt"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if len(body) > 0 {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
		fmt.Println(string(body))
		return
	}
	fmt.Printf("status=%d\n", status)
}

func expect2xx(status int, body []byte, err error) error {
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("status=%d body=%s", status, string(body))
	}
	return nil
}

func main() {
	var (
		baseURL = envOr("JANUS_ADMIN_URL", "http://localhost:8080")
		apiKey  = envOr("JANUS_ADMIN_KEY", "")
		out     = envOr("JANUS_OUT", "text")
	)

	cl := &client{OutFormat: out, HTTP: &http.Client{Timeout: 30 * time.Second}}

	root := &cobra.Command{
		Use:   "janusctl",
		Short: "CLI admin para Janus (vía /v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cl.BaseURL = baseURL
			cl.APIKey = apiKey
			cl.OutFormat = out
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "admin-api-url", baseURL, "URL base del Admin API (env JANUS_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key del Admin API (env JANUS_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	requireKey := func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("falta API key (flag --admin-api-key o env JANUS_ADMIN_KEY)")
		}
		cl.APIKey = apiKey
		return nil
	}

	// servicios
	servicesCmd := &cobra.Command{
		Use:               "services",
		Short:             "Gestión de relying parties",
		PersistentPreRunE: requireKey,
	}

	servicesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Listar services registrados",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/services", nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	})

	servicesCmd.AddCommand(&cobra.Command{
		Use:   "get <client_id>",
		Short: "Ver un service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/services/"+url.PathEscape(args[0]), nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	})

	var createFile string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Registrar un service desde un JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(createFile)
			if err != nil {
				return err
			}
			status, resp, err := cl.do("POST", "/v1/admin/services", body)
			if err := expect2xx(status, resp, err); err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&createFile, "file", "f", "-", "archivo JSON con el service ('-' = stdin)")
	servicesCmd.AddCommand(createCmd)

	var updateFile string
	updateCmd := &cobra.Command{
		Use:   "update <client_id>",
		Short: "Reemplazar la configuración de un service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(updateFile)
			if err != nil {
				return err
			}
			status, resp, err := cl.do("PUT", "/v1/admin/services/"+url.PathEscape(args[0]), body)
			if err := expect2xx(status, resp, err); err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "-", "archivo JSON con el service ('-' = stdin)")
	servicesCmd.AddCommand(updateCmd)

	servicesCmd.AddCommand(&cobra.Command{
		Use:   "delete <client_id>",
		Short: "Eliminar un service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("DELETE", "/v1/admin/services/"+url.PathEscape(args[0]), nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	})

	servicesCmd.AddCommand(&cobra.Command{
		Use:   "rotate-secret <client_id>",
		Short: "Regenerar el client_secret (se muestra una única vez)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/admin/services/"+url.PathEscape(args[0])+"/rotate-secret", nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	})

	// usuarios
	usersCmd := &cobra.Command{
		Use:               "users",
		Short:             "Gestión de usuarios",
		PersistentPreRunE: requireKey,
	}

	var usersQuery string
	usersListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar usuarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/users"
			if usersQuery != "" {
				path += "?q=" + url.QueryEscape(usersQuery)
			}
			status, body, err := cl.do("GET", path, nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	usersListCmd.Flags().StringVarP(&usersQuery, "query", "q", "", "búsqueda por email o nombre")
	usersCmd.AddCommand(usersListCmd)

	var disableReason string
	disableCmd := &cobra.Command{
		Use:   "disable <user_id>",
		Short: "Deshabilitar un usuario (cierra sus sesiones)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"reason": disableReason})
			status, resp, err := cl.do("POST", "/v1/admin/users/"+url.PathEscape(args[0])+"/disable", body)
			if err := expect2xx(status, resp, err); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	disableCmd.Flags().StringVar(&disableReason, "reason", "", "motivo de la deshabilitación")
	usersCmd.AddCommand(disableCmd)

	usersCmd.AddCommand(&cobra.Command{
		Use:   "enable <user_id>",
		Short: "Rehabilitar un usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/admin/users/"+url.PathEscape(args[0])+"/enable", nil)
			if err := expect2xx(status, body, err); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	})

	// keys: opera sobre el keystore local, no sobre el API
	var keysDir string
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Gestión local de claves de firma",
	}
	keysCmd.PersistentFlags().StringVar(&keysDir, "keys-dir", envOr("JANUS_KEYS_DIR", "./data/keys"), "directorio del keystore")

	keysCmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Rotar la clave activa; la anterior sigue publicada en el JWKS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := jwtx.OpenKeystore(keysDir)
			if err != nil {
				return err
			}
			kid, err := ks.Rotate()
			if err != nil {
				return err
			}
			fmt.Printf("rotated, new kid=%s\n", kid)
			return nil
		},
	})

	keysCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Mostrar el JWKS publicable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := jwtx.OpenKeystore(keysDir)
			if err != nil {
				return err
			}
			b, err := ks.JWKSJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	})

	root.AddCommand(servicesCmd, usersCmd, keysCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
