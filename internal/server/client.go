package server

import "net/http"

// clientScript connects to the reload socket. A css_update swaps the matching
// stylesheet in place and a full_reload reloads the page. After a lost
// connection it reconnects and reloads, since the server may have rebuilt
// everything meanwhile.
const clientScript = `(function () {
  "use strict";
  var scheme = location.protocol === "https:" ? "wss:" : "ws:";
  var url = scheme + "//" + location.host + "` + WebSocketPath + `";
  var connectedBefore = false;
  var delay = 500;

  function swapStylesheet(target) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var swapped = false;
    for (var i = 0; i < links.length; i++) {
      var link = links[i];
      var path = link.href.split("?")[0].split("#")[0];
      if (path.slice(-(target.length + 1)) === "/" + target) {
        link.href = path + "?v=" + Date.now();
        swapped = true;
      }
    }
    return swapped;
  }

  function connect() {
    var socket = new WebSocket(url);
    socket.onopen = function () {
      if (connectedBefore) {
        location.reload();
        return;
      }
      connectedBefore = true;
      delay = 500;
    };
    socket.onmessage = function (event) {
      var msg;
      try {
        msg = JSON.parse(event.data);
      } catch (e) {
        return;
      }
      if (msg.type === "css_update") {
        if (!swapStylesheet(msg.target)) {
          location.reload();
        }
      } else if (msg.type === "full_reload") {
        location.reload();
      }
    };
    socket.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 5000);
    };
  }

  connect();
})();
`

func handleClientScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(clientScript))
	}
}
